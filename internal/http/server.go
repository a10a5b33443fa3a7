package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tally/internal/cache"
	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
	"tally/internal/services"
)

type Options struct {
	Logger             *applog.Logger
	RateLimitPerMinute int
	// TrustedProxies are CIDRs whose X-Forwarded-For is honored, on top of
	// loopback and private ranges.
	TrustedProxies []string
	// SummaryCache is only read for /stats.
	SummaryCache *cache.LRUCache[core.RangeSummary]
}

// Server is the JSON API in front of a TrackerService.
type Server struct {
	http.Server

	svc      *services.TrackerService
	logger   *applog.Logger
	events   *applog.StructuredLogger
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector
	summary  *cache.LRUCache[core.RangeSummary]

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.TrackerService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}

	s := &Server{
		svc:      svc,
		logger:   logger,
		events:   applog.NewStructuredLogger(logger),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger),
		detector: detector,
		summary:  opts.SummaryCache,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /trackers", s.handleTrackers)
	mux.HandleFunc("POST /trackers/{tracker}/events", s.handleRecordEvent)
	mux.HandleFunc("GET /trackers/{tracker}/counts", s.handleCount)
	mux.HandleFunc("GET /trackers/{tracker}/days/{day}", s.handleDay)
	mux.HandleFunc("DELETE /trackers/{tracker}/days/{day}", s.handleClearDay)
	mux.HandleFunc("GET /trackers/{tracker}/summary", s.handleSummary)
	mux.HandleFunc("GET /trackers/{tracker}/streaks", s.handleStreaks)

	// Outermost first.
	chain := []func(http.Handler) http.Handler{
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.tracer.Middleware,
		detector.Middleware(logger.Logger),
		s.limiter.Middleware(detector.ExtractClientIP, s.onRateLimited),
		applog.Middleware(logger),
		applog.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) }),
	}
	var h http.Handler = mux
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, TooManyRequestsError())
}

// Shutdown stops the rate limiter cleanup and drains the HTTP server. It is
// safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
