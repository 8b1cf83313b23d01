package intercept

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gsbak/internal/android"
	"gsbak/internal/identifier"
)

// DefaultTTL bounds how stale a served identifier can be. Short enough
// that an invalidate-and-rewrite from the restore tool is picked up
// quickly, long enough that a burst of lookups costs one file read.
const DefaultTTL = 5 * time.Second

// Entry is the cross-process identifier handoff: what the restore tool
// last staged for the interceptor to serve.
type Entry struct {
	AppSetID  string
	SSAID     string
	Label     string
	Timestamp time.Time
}

// FormatEntry renders the flat-file line the restore tool writes:
// appSetId|ssaid|label|unix-timestamp.
func FormatEntry(e Entry) string {
	return strings.Join([]string{
		e.AppSetID,
		e.SSAID,
		e.Label,
		strconv.FormatInt(e.Timestamp.Unix(), 10),
	}, "|")
}

// ParseEntry decodes a flat-file line. Malformed input yields the sentinel
// entry rather than an error: a broken cache file must never take the
// hosting app down.
func ParseEntry(line string) Entry {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) != 4 {
		return sentinelEntry()
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return sentinelEntry()
	}
	return Entry{
		AppSetID:  orNotPresent(parts[0]),
		SSAID:     orNotPresent(parts[1]),
		Label:     parts[2],
		Timestamp: time.Unix(ts, 0),
	}
}

func sentinelEntry() Entry {
	return Entry{AppSetID: identifier.NotPresent, SSAID: identifier.NotPresent}
}

func orNotPresent(s string) string {
	if s == "" {
		return identifier.NotPresent
	}
	return s
}

// CacheReader serves the staged entry with a short-lived in-memory cache
// in front of the flat file. A missing or malformed file reads as the
// sentinel entry, never an error.
type CacheReader struct {
	mu     sync.Mutex
	read   func() ([]byte, error)
	clock  Clock
	ttl    time.Duration
	entry  Entry
	loaded time.Time
	valid  bool
}

// NewCacheReader creates a reader. A nil read function reads the
// cross-process cache file; a nil clock uses wall time; a non-positive
// ttl uses DefaultTTL.
func NewCacheReader(read func() ([]byte, error), clock Clock, ttl time.Duration) *CacheReader {
	if read == nil {
		read = func() ([]byte, error) { return os.ReadFile(android.AdCachePath) }
	}
	if clock == nil {
		clock = realClock{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CacheReader{read: read, clock: clock, ttl: ttl}
}

// Read returns the current entry, consulting the file at most once per
// TTL window.
func (r *CacheReader) Read() Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if r.valid && now.Sub(r.loaded) < r.ttl {
		return r.entry
	}

	data, err := r.read()
	if err != nil {
		r.entry = sentinelEntry()
	} else {
		r.entry = ParseEntry(string(data))
	}
	r.loaded = now
	r.valid = true
	return r.entry
}

// Invalidate drops the in-memory entry so the next Read hits the file.
func (r *CacheReader) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valid = false
}
