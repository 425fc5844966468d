package httpkit

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// RequestLogEntry is one handled request as exposed on /admin/requests.
type RequestLogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers,omitempty"`
	StatusCode int               `json:"status_code"`
	DurationMS float64           `json:"duration_ms"`
	RequestID  string            `json:"request_id,omitempty"`
}

// RequestLog keeps the most recent requests in a fixed-size ring.
type RequestLog struct {
	mu   sync.Mutex
	buf  []RequestLogEntry
	next int
	full bool
}

// NewRequestLog creates a request log holding at most size entries.
func NewRequestLog(size int) *RequestLog {
	return &RequestLog{buf: make([]RequestLogEntry, max(size, 1))}
}

// Add records entry, overwriting the oldest one when the ring is full.
func (rl *RequestLog) Add(entry RequestLogEntry) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.buf[rl.next] = entry
	rl.next = (rl.next + 1) % len(rl.buf)
	if rl.next == 0 {
		rl.full = true
	}
}

// Entries returns the logged requests, oldest first.
func (rl *RequestLog) Entries() []RequestLogEntry {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if !rl.full {
		return append([]RequestLogEntry(nil), rl.buf[:rl.next]...)
	}
	out := make([]RequestLogEntry, 0, len(rl.buf))
	out = append(out, rl.buf[rl.next:]...)
	return append(out, rl.buf[:rl.next]...)
}

// Clear empties the ring.
func (rl *RequestLog) Clear() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	clear(rl.buf)
	rl.next, rl.full = 0, false
}

// FaultConfig describes a failure injected on one path. A zero StatusCode
// with a positive delay only slows the request down.
type FaultConfig struct {
	StatusCode int     `json:"status_code"`
	Body       string  `json:"body,omitempty"`
	DelayMS    int64   `json:"delay_ms,omitempty"`
	Rate       float64 `json:"rate"`
}

func (f FaultConfig) delay() time.Duration {
	return time.Duration(f.DelayMS) * time.Millisecond
}

// FaultRegistry maps exact request paths to injected faults.
type FaultRegistry struct {
	mu     sync.RWMutex
	faults map[string]FaultConfig
	roll   func() float64
}

// NewFaultRegistry creates an empty registry.
func NewFaultRegistry() *FaultRegistry {
	return &FaultRegistry{faults: make(map[string]FaultConfig), roll: rand.Float64}
}

// Set registers fault for path. Rates outside (0, 1] fire on every request.
func (fr *FaultRegistry) Set(path string, fault FaultConfig) {
	if fault.Rate <= 0 || fault.Rate > 1 {
		fault.Rate = 1
	}
	fr.mu.Lock()
	fr.faults[path] = fault
	fr.mu.Unlock()
}

// Remove unregisters path and reports whether a fault was registered.
func (fr *FaultRegistry) Remove(path string) bool {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if _, ok := fr.faults[path]; !ok {
		return false
	}
	delete(fr.faults, path)
	return true
}

// Check returns the fault that fires for this request to path, or nil.
func (fr *FaultRegistry) Check(path string) *FaultConfig {
	fr.mu.RLock()
	f, ok := fr.faults[path]
	fr.mu.RUnlock()
	if !ok || (f.Rate < 1 && fr.roll() >= f.Rate) {
		return nil
	}
	return &f
}

// All returns the registered faults keyed by path.
func (fr *FaultRegistry) All() map[string]FaultConfig {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	out := make(map[string]FaultConfig, len(fr.faults))
	for path, f := range fr.faults {
		out[path] = f
	}
	return out
}

// Reset drops every fault.
func (fr *FaultRegistry) Reset() {
	fr.mu.Lock()
	clear(fr.faults)
	fr.mu.Unlock()
}

// ReplayTTL is how long a stored response answers a repeated key. YooKassa
// honours an Idempotence-Key for 24 hours.
const ReplayTTL = 24 * time.Hour

type replay struct {
	status int
	body   []byte
	stored time.Time
}

// ReplayCache remembers responses by idempotency key until ReplayTTL passes.
type ReplayCache struct {
	mu      sync.Mutex
	entries map[string]replay
	now     func() time.Time
}

// NewReplayCache creates an empty cache.
func NewReplayCache() *ReplayCache {
	return &ReplayCache{entries: make(map[string]replay), now: time.Now}
}

// Lookup returns the stored response for key. Expired keys are dropped.
func (rc *ReplayCache) Lookup(key string) (int, []byte, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	e, ok := rc.entries[key]
	if !ok {
		return 0, nil, false
	}
	if rc.now().Sub(e.stored) >= ReplayTTL {
		delete(rc.entries, key)
		return 0, nil, false
	}
	return e.status, e.body, true
}

// Remember stores the response for key.
func (rc *ReplayCache) Remember(key string, status int, body []byte) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries[key] = replay{status: status, body: append([]byte(nil), body...), stored: rc.now()}
}

// Reset forgets every key.
func (rc *ReplayCache) Reset() {
	rc.mu.Lock()
	clear(rc.entries)
	rc.mu.Unlock()
}

// Middleware bundles the simulation and observability layers a Server
// mounts, along with the state the admin surface inspects.
type Middleware struct {
	cfg        *Config
	logger     *slog.Logger
	cors       *cors.Cors
	ReqLog     *RequestLog
	Faults     *FaultRegistry
	Idempotent *ReplayCache
}

// NewMiddleware creates a Middleware. An empty origin list allows any origin.
func NewMiddleware(cfg *Config, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Middleware{
		cfg:    cfg,
		logger: logger,
		cors: cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut,
				http.MethodPatch, http.MethodDelete, http.MethodOptions,
			},
			AllowedHeaders: []string{
				"Accept", "Accept-Language", "Authorization", "Content-Type",
				"Idempotence-Key", "X-Api-Key",
			},
			MaxAge: 3600,
		}),
		ReqLog:     NewRequestLog(1000),
		Faults:     NewFaultRegistry(),
		Idempotent: NewReplayCache(),
	}
}

// CORS applies the configured origin allow-list.
func (m *Middleware) CORS(next http.Handler) http.Handler {
	return m.cors.Handler(next)
}

var redactedHeaders = map[string]bool{"Authorization": true, "X-Api-Key": true}

// RequestLog records every request in the ring and logs it at debug level.
// Header values are captured only in verbose mode, with credentials masked.
func (m *Middleware) RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		entry := RequestLogEntry{
			Timestamp:  start,
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: status,
			DurationMS: float64(elapsed.Microseconds()) / 1000,
			RequestID:  chimw.GetReqID(r.Context()),
		}
		if m.cfg.Verbose {
			entry.Headers = make(map[string]string, len(r.Header))
			for k := range r.Header {
				v := r.Header.Get(k)
				if redactedHeaders[http.CanonicalHeaderKey(k)] {
					v = "[redacted]"
				}
				entry.Headers[k] = v
			}
		}
		m.ReqLog.Add(entry)
		m.logger.Debug("request", "method", r.Method, "path", r.URL.Path,
			"status", status, "duration", elapsed, "request_id", entry.RequestID)
	})
}

// sleep waits for d or until ctx ends, reporting whether the full delay ran.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// LatencyInjection delays every request by 80-120% of the configured latency.
func (m *Middleware) LatencyInjection(next http.Handler) http.Handler {
	if m.cfg.Latency <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jitter := 0.8 + rand.Float64()*0.4
		if !sleep(r.Context(), time.Duration(float64(m.cfg.Latency)*jitter)) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RandomFailure fails requests with 500 at the configured rate.
func (m *Middleware) RandomFailure(next http.Handler) http.Handler {
	if m.cfg.FailRate <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rand.Float64() < m.cfg.FailRate {
			Error(w, http.StatusInternalServerError, "simulated random failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FaultInjection applies registered faults. Mount it inside API route
// groups so admin endpoints stay reachable.
func (m *Middleware) FaultInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fault := m.Faults.Check(r.URL.Path)
		if fault == nil {
			next.ServeHTTP(w, r)
			return
		}
		if !sleep(r.Context(), fault.delay()) {
			return
		}
		if fault.StatusCode == 0 {
			next.ServeHTTP(w, r)
			return
		}
		if fault.Body == "" {
			JSON(w, fault.StatusCode, map[string]any{"detail": "injected fault", "code": fault.StatusCode})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fault.StatusCode)
		_, _ = w.Write([]byte(fault.Body))
	})
}
