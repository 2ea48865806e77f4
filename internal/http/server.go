package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	applog "expensecal/internal/log"
	"expensecal/internal/middleware/ratelimit"
	"expensecal/internal/middleware/security"
	"expensecal/internal/middleware/trace"
	"expensecal/internal/services"
)

// Options configures the HTTP server. Zero values pick the defaults.
type Options struct {
	CORSOrigins        []string
	RateLimitPerMinute int
	Logger             *applog.Logger
}

// Server serves the JSON API over an ExpenseService.
type Server struct {
	http.Server
	svc       *services.ExpenseService
	logger    *applog.Logger
	errLog    *applog.StructuredLogger
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	startedAt time.Time

	shutdownOnce sync.Once
}

func NewServer(addr string, svc *services.ExpenseService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		svc:       svc,
		logger:    logger,
		errLog:    applog.NewStructuredLogger(logger),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:  security.NewDetector(),
		startedAt: time.Now(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)
	s.Handler = s.chain(mux, opts.CORSOrigins)
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /expenses", s.handleMonthExpenses)
	mux.HandleFunc("GET /expenses/by-date/{date}", s.handleExpensesByDate)
	mux.HandleFunc("GET /expenses/summary", s.handleYearSummary)
	mux.HandleFunc("GET /expenses/categories", s.handleCategoryTotals)
	mux.HandleFunc("GET /expenses/daily-totals", s.handleDailyTotals)
	mux.HandleFunc("GET /expenses/overview", s.handleOverview)
	mux.HandleFunc("GET /expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PUT /expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("POST /budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /budgets", s.handleListBudgets)
	mux.HandleFunc("GET /budgets/current", s.handleCurrentBudget)
	mux.HandleFunc("GET /budgets/progress", s.handleBudgetProgress)

	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
}

// chain wraps h as trace, security, CORS, rate limit (outermost first).
func (s *Server) chain(h http.Handler, origins []string) http.Handler {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(h)

	withCORS := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", trace.HeaderRequestID},
		ExposedHeaders:   []string{trace.HeaderRequestID, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler(limited)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(withCORS)
	probed := s.detector.Middleware(s.logger.Slog())(headers)
	return s.tracer.Middleware(probed)
}

// Shutdown gracefully shuts down the server and the limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// fail logs err with the endpoint and writes the mapped error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorFor(err)
	s.errLog.LogEndpointError(r.Context(), r.Method+" "+r.URL.Path, resp.statusCode, err)
	resp.Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]bool{"ok": true}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		s.errLog.LogEndpointError(r.Context(), "GET /readyz", http.StatusServiceUnavailable, err)
		ErrorResponse(http.StatusServiceUnavailable, "Store unavailable").Write(w)
		return
	}
	NewResponse().JSON(map[string]any{
		"ok":     true,
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	names := s.svc.Categories()
	if names == nil {
		names = []string{}
	}
	NewResponse().JSON(map[string]any{
		"restricted": len(names) > 0,
		"categories": names,
	}).Write(w)
}
