package intercept

import (
	"errors"

	"gsbak/internal/identifier"
)

// ErrNoStrategy means every known hook point was missing or refused the
// hook. The hosting app keeps its real identifiers.
var ErrNoStrategy = errors.New("no interception strategy could be installed")

// Known hook points. The public entry point is tried first, then the
// obfuscated internal carriers (names drift between library releases),
// then the stable accessor on the result object itself.
const (
	ClassAppSet    = "com.google.android.gms.appset.AppSet"
	ClassInternalL = "com.google.android.gms.internal.appset.zzl"
	ClassInternalP = "com.google.android.gms.internal.appset.zzp"
	ClassInternalR = "com.google.android.gms.internal.appset.zzr"
	ClassIDInfo    = "com.google.android.gms.appset.AppSetIdInfo"
)

// strategy is one known viewpoint into the vendor library: the class and
// method to hook, and how to forge that method's result from a cache entry.
type strategy struct {
	class  string
	method string
	forge  func(e Entry) any
}

func defaultStrategies() []strategy {
	return []strategy{
		{ClassAppSet, "getClient", forgeClient},
		{ClassInternalL, "getAppSetIdInfo", forgeTask},
		{ClassInternalP, "getAppSetIdInfo", forgeTask},
		{ClassInternalR, "getAppSetIdInfo", forgeTask},
		{ClassIDInfo, "getId", forgeID},
	}
}

func forgeClient(e Entry) any {
	return Client{info: AppSetIDInfo{ID: e.AppSetID, Scope: ScopeApp}}
}

func forgeTask(e Entry) any {
	return NewCompletedTask(AppSetIDInfo{ID: e.AppSetID, Scope: ScopeApp})
}

func forgeID(e Entry) any {
	return e.AppSetID
}

// Module wires the identifier hook into a hosting runtime. It is owned by
// the agent's composition root; one Install call per process.
type Module struct {
	cache      *CacheReader
	logger     Logger
	strategies []strategy
	installed  string // "class#method" once a hook landed
}

// NewModule creates a Module serving identifiers from cache.
func NewModule(cache *CacheReader, logger Logger) *Module {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Module{
		cache:      cache,
		logger:     logger,
		strategies: defaultStrategies(),
	}
}

// Install tries each strategy in order and stops at the first hook that
// lands. Misses are logged and skipped; when every strategy misses the
// module reports ErrNoStrategy and the app is left untouched.
func (m *Module) Install(rt Runtime) error {
	for _, s := range m.strategies {
		cls, err := rt.FindClass(s.class)
		if err != nil {
			m.logger.Debug("hook class not loaded", "class", s.class, "error", err)
			continue
		}
		if err := cls.Hook(s.method, m.handlerFor(s)); err != nil {
			m.logger.Warn("hook rejected", "class", s.class, "method", s.method, "error", err)
			continue
		}
		m.installed = s.class + "#" + s.method
		m.logger.Info("identifier hook installed", "at", m.installed)
		return nil
	}
	return ErrNoStrategy
}

// Installed returns the hook point in use, or the empty string before a
// successful Install.
func (m *Module) Installed() string {
	return m.installed
}

// handlerFor builds the replacement for one hook point: serve the cached
// identifier in the shape the call site expects, or pass through to the
// genuine implementation when nothing is staged.
func (m *Module) handlerFor(s strategy) Handler {
	return func(inv *Invocation) (any, error) {
		entry := m.cache.Read()
		if entry.AppSetID == identifier.NotPresent {
			return inv.Proceed()
		}
		m.logger.Debug("serving staged identifier", "method", inv.Method, "label", entry.Label)
		return s.forge(entry), nil
	}
}
