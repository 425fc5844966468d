// Package httpkit provides the HTTP server, middleware chain and response
// helpers shared by the ZodiacBot API and the payment simulator.
package httpkit

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

// Config holds listener and middleware settings.
type Config struct {
	Name            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	Verbose         bool
	// Latency and FailRate are simulation knobs; zero disables them.
	Latency  time.Duration
	FailRate float64
}

// ParseFlags parses the simulator flags from args.
func ParseFlags(name string, args []string) (*Config, error) {
	cfg := &Config{Name: name}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", 0, "HTTP listen port")
	fs.DurationVar(&cfg.Latency, "latency", 0, "Base simulated latency")
	fs.Float64Var(&cfg.FailRate, "fail-rate", 0.0, "Random failure rate 0.0-1.0")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable request logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		if p := os.Getenv("PORT"); p != "" {
			if _, err := fmt.Sscanf(p, "%d", &cfg.Port); err != nil {
				return nil, fmt.Errorf("invalid PORT %q: %w", p, err)
			}
		}
	}
	if cfg.FailRate < 0 || cfg.FailRate > 1 {
		return nil, fmt.Errorf("fail-rate must be between 0.0 and 1.0")
	}
	return cfg, nil
}

// NewLogger returns the JSON stdout logger used by every binary.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// Server wraps a chi router with the common middleware stack.
type Server struct {
	Config *Config
	Router *chi.Mux
	Logger *slog.Logger
	mw     *Middleware
}

// New creates a Server. A nil logger uses NewLogger(cfg.Verbose).
func New(cfg *Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = NewLogger(cfg.Verbose)
	}
	r := chi.NewRouter()
	mw := NewMiddleware(cfg, logger)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(mw.CORS)
	r.Use(mw.RequestLog)
	r.Use(mw.LatencyInjection)
	r.Use(mw.RandomFailure)

	return &Server{Config: cfg, Router: r, Logger: logger, mw: mw}
}

// Middleware returns the middleware instance.
func (s *Server) Middleware() *Middleware {
	return s.mw
}

// ServeHTTP implements http.Handler so a Server can back httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Serve listens on the configured port and blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Config.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Router,
		ReadTimeout:  orDefault(s.Config.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(s.Config.WriteTimeout, 30*time.Second),
		IdleTimeout:  orDefault(s.Config.IdleTimeout, 60*time.Second),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Logger.Info("starting server", "name", s.Config.Name, "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Logger.Info("shutting down server", "name", s.Config.Name)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), orDefault(s.Config.ShutdownTimeout, 10*time.Second))
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes {"detail": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"detail": message})
}
