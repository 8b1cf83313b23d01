package intercept

import (
	"errors"
	"os"
	"testing"
	"time"

	"gsbak/internal/identifier"
)

type fakeRuntime struct {
	classes map[string]*fakeClass
}

func (r *fakeRuntime) FindClass(name string) (Class, error) {
	cls, ok := r.classes[name]
	if !ok {
		return nil, errors.New("class not loaded: " + name)
	}
	return cls, nil
}

type fakeClass struct {
	refuse bool
	hooks  map[string]Handler
}

func (c *fakeClass) Hook(method string, h Handler) error {
	if c.refuse {
		return errors.New("method not hookable")
	}
	if c.hooks == nil {
		c.hooks = make(map[string]Handler)
	}
	c.hooks[method] = h
	return nil
}

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

func (c *stubClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func staticCache(line string) *CacheReader {
	return NewCacheReader(func() ([]byte, error) { return []byte(line), nil }, nil, 0)
}

func missingCache() *CacheReader {
	return NewCacheReader(func() ([]byte, error) { return nil, os.ErrNotExist }, nil, 0)
}

func entryLine(appSetID string) string {
	return FormatEntry(Entry{
		AppSetID:  appSetID,
		SSAID:     "0123456789abcdef",
		Label:     "Alice",
		Timestamp: time.Unix(1700000000, 0),
	})
}

func TestModule_Install(t *testing.T) {
	t.Run("prefers the public entry point", func(t *testing.T) {
		rt := &fakeRuntime{classes: map[string]*fakeClass{
			ClassAppSet:    {},
			ClassInternalL: {},
			ClassIDInfo:    {},
		}}
		m := NewModule(missingCache(), nil)

		if err := m.Install(rt); err != nil {
			t.Fatalf("Install() error = %v", err)
		}
		if m.Installed() != ClassAppSet+"#getClient" {
			t.Errorf("Installed() = %q", m.Installed())
		}
		if len(rt.classes[ClassInternalL].hooks) != 0 {
			t.Error("later strategy hooked despite an earlier success")
		}
	})

	t.Run("falls through to an internal carrier", func(t *testing.T) {
		rt := &fakeRuntime{classes: map[string]*fakeClass{
			ClassInternalP: {},
		}}
		m := NewModule(missingCache(), nil)

		if err := m.Install(rt); err != nil {
			t.Fatalf("Install() error = %v", err)
		}
		if m.Installed() != ClassInternalP+"#getAppSetIdInfo" {
			t.Errorf("Installed() = %q", m.Installed())
		}
	})

	t.Run("a refused hook is a miss, not a failure", func(t *testing.T) {
		rt := &fakeRuntime{classes: map[string]*fakeClass{
			ClassAppSet: {refuse: true},
			ClassIDInfo: {},
		}}
		m := NewModule(missingCache(), nil)

		if err := m.Install(rt); err != nil {
			t.Fatalf("Install() error = %v", err)
		}
		if m.Installed() != ClassIDInfo+"#getId" {
			t.Errorf("Installed() = %q", m.Installed())
		}
	})

	t.Run("reports ErrNoStrategy when everything misses", func(t *testing.T) {
		rt := &fakeRuntime{classes: map[string]*fakeClass{}}
		m := NewModule(missingCache(), nil)

		if err := m.Install(rt); !errors.Is(err, ErrNoStrategy) {
			t.Fatalf("Install() error = %v, want ErrNoStrategy", err)
		}
		if m.Installed() != "" {
			t.Errorf("Installed() = %q, want empty", m.Installed())
		}
	})
}

func TestModule_Interception(t *testing.T) {
	install := func(t *testing.T, cache *CacheReader, class, method string) Handler {
		t.Helper()
		cls := &fakeClass{}
		rt := &fakeRuntime{classes: map[string]*fakeClass{class: cls}}
		m := NewModule(cache, nil)
		if err := m.Install(rt); err != nil {
			t.Fatalf("Install() error = %v", err)
		}
		h, ok := cls.hooks[method]
		if !ok {
			t.Fatalf("method %s not hooked", method)
		}
		return h
	}

	t.Run("passes through when nothing is staged", func(t *testing.T) {
		h := install(t, missingCache(), ClassInternalL, "getAppSetIdInfo")

		proceeded := false
		res, err := h(&Invocation{
			Method: "getAppSetIdInfo",
			Proceed: func() (any, error) {
				proceeded = true
				return "genuine", nil
			},
		})
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if !proceeded {
			t.Error("original implementation not invoked")
		}
		if res != "genuine" {
			t.Errorf("result = %v, want the genuine value", res)
		}
	})

	t.Run("forges a completed task on the internal carrier", func(t *testing.T) {
		h := install(t, staticCache(entryLine("11112222-3333-4444-5555-666677778888")), ClassInternalL, "getAppSetIdInfo")

		res, err := h(&Invocation{Method: "getAppSetIdInfo", Proceed: func() (any, error) {
			t.Fatal("original implementation invoked despite staged identifier")
			return nil, nil
		}})
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		task, ok := res.(*CompletedTask)
		if !ok {
			t.Fatalf("result type = %T, want *CompletedTask", res)
		}
		if !task.IsComplete() || !task.IsSuccessful() {
			t.Error("forged task not complete and successful")
		}
		info := task.Result()
		if info.GetID() != "11112222-3333-4444-5555-666677778888" {
			t.Errorf("forged id = %q", info.GetID())
		}
		if info.GetScope() != ScopeApp {
			t.Errorf("forged scope = %d, want %d", info.GetScope(), ScopeApp)
		}

		fired := false
		task.AddOnSuccessListener(func(got AppSetIDInfo) {
			fired = true
			if got != info {
				t.Errorf("listener got %+v", got)
			}
		})
		if !fired {
			t.Error("success listener did not fire inline")
		}
	})

	t.Run("forges the raw id on the accessor", func(t *testing.T) {
		h := install(t, staticCache(entryLine("deadbeef-feed-face-cafe-000011112222")), ClassIDInfo, "getId")

		res, err := h(&Invocation{Method: "getId", Proceed: func() (any, error) { return nil, nil }})
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if res != "deadbeef-feed-face-cafe-000011112222" {
			t.Errorf("result = %v", res)
		}
	})

	t.Run("forges a client on the public entry point", func(t *testing.T) {
		h := install(t, staticCache(entryLine("abcd")), ClassAppSet, "getClient")

		res, err := h(&Invocation{Method: "getClient", Proceed: func() (any, error) { return nil, nil }})
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		client, ok := res.(Client)
		if !ok {
			t.Fatalf("result type = %T, want Client", res)
		}
		if got := client.GetAppSetIdInfo().Result().GetID(); got != "abcd" {
			t.Errorf("client id = %q", got)
		}
	})
}

func TestCacheReader_TTL(t *testing.T) {
	clock := &stubClock{now: time.Unix(1700000000, 0)}
	reads := 0
	r := NewCacheReader(func() ([]byte, error) {
		reads++
		return []byte(entryLine("aaaa")), nil
	}, clock, 0)

	r.Read()
	r.Read()
	if reads != 1 {
		t.Fatalf("reads = %d after two lookups inside the window, want 1", reads)
	}

	clock.advance(DefaultTTL + time.Second)
	if got := r.Read(); got.AppSetID != "aaaa" {
		t.Errorf("entry = %+v", got)
	}
	if reads != 2 {
		t.Fatalf("reads = %d after expiry, want 2", reads)
	}
}

func TestCacheReader_Invalidate(t *testing.T) {
	clock := &stubClock{now: time.Unix(1700000000, 0)}
	reads := 0
	r := NewCacheReader(func() ([]byte, error) {
		reads++
		return []byte(entryLine("bbbb")), nil
	}, clock, 0)

	r.Read()
	r.Invalidate()
	r.Read()
	if reads != 2 {
		t.Fatalf("reads = %d after invalidate, want 2", reads)
	}
}

func TestCacheReader_DegradedFile(t *testing.T) {
	t.Run("missing file reads as sentinel", func(t *testing.T) {
		got := missingCache().Read()
		if got.AppSetID != identifier.NotPresent || got.SSAID != identifier.NotPresent {
			t.Errorf("entry = %+v, want sentinel", got)
		}
	})

	t.Run("malformed lines read as sentinel", func(t *testing.T) {
		for _, line := range []string{"", "no pipes here", "a|b|c", "a|b|c|d|e", "a|b|c|not-a-number"} {
			if got := staticCache(line).Read(); got.AppSetID != identifier.NotPresent {
				t.Errorf("ParseEntry(%q).AppSetID = %q, want sentinel", line, got.AppSetID)
			}
		}
	})
}

func TestEntryCodec(t *testing.T) {
	in := Entry{
		AppSetID:  "11112222-3333-4444-5555-666677778888",
		SSAID:     "0123456789abcdef",
		Label:     "Alice",
		Timestamp: time.Unix(1700000123, 0),
	}
	line := FormatEntry(in)
	if line != "11112222-3333-4444-5555-666677778888|0123456789abcdef|Alice|1700000123" {
		t.Errorf("FormatEntry() = %q", line)
	}

	out := ParseEntry(line + "\n")
	if out.AppSetID != in.AppSetID || out.SSAID != in.SSAID || out.Label != in.Label {
		t.Errorf("ParseEntry() = %+v", out)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("timestamp = %v, want %v", out.Timestamp, in.Timestamp)
	}

	t.Run("empty identifier fields become sentinels", func(t *testing.T) {
		got := ParseEntry("|0123456789abcdef|Bob|1700000000")
		if got.AppSetID != identifier.NotPresent {
			t.Errorf("AppSetID = %q, want sentinel", got.AppSetID)
		}
	})
}
