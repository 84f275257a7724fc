package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shelfwatch/pkg/auth"
	"shelfwatch/pkg/config"
	"shelfwatch/pkg/contracts"
	"shelfwatch/pkg/middleware"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/sync/errgroup"
)

type namedRunner struct {
	name   string
	runner contracts.Runner
}

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore *middleware.InMemoryIdempotencyStore
	rateLimiter      *middleware.StationRateLimiter
	healthHandler    http.Handler
	realtimeHandler  http.Handler
	appHttpHandler   http.Handler
	runners          []namedRunner
	onShutdown       []func()
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

// SetApp builds three handler trees: health probes and the realtime
// endpoints get Recovery and Logging only, the API gets the full chain.
// A nil verifier leaves the API unauthenticated.
func (a *Application) SetApp(health contracts.Handler, realtime contracts.Handler, verifier auth.Verifier, handlers ...contracts.Handler) {
	a.healthHandler = a.minimalHandler(health)
	a.realtimeHandler = a.minimalHandler(realtime)
	a.setAppHandler(verifier, handlers)
	a.setAppServer()
}

// AddRunner registers a background loop started by Run and stopped on
// shutdown after the HTTP server has drained.
func (a *Application) AddRunner(name string, r contracts.Runner) {
	a.runners = append(a.runners, namedRunner{name: name, runner: r})
}

// OnShutdown registers cleanup run after the runners stop, in order.
func (a *Application) OnShutdown(fn func()) {
	a.onShutdown = append(a.onShutdown, fn)
}

func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) minimalHandler(h contracts.Handler) http.Handler {
	router := httprouter.New()
	h.RegisterRoutes(router)

	var handler http.Handler = router
	handler = middleware.RequestLogging(a.cfg.Log)(handler)
	handler = middleware.Recovery(a.cfg.Log)(handler)
	return handler
}

func (a *Application) setAppHandler(verifier auth.Verifier, handlers []contracts.Handler) {
	appRouter := httprouter.New()
	for _, h := range handlers {
		h.RegisterRoutes(appRouter)
	}

	a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	a.rateLimiter = middleware.NewStationRateLimiter(
		a.cfg.RateLimitRequests,
		a.cfg.RateLimitWindow,
		middleware.DefaultStationExtractor,
		a.cfg.Log,
	)

	var appHttpHandler http.Handler = appRouter
	if verifier != nil {
		appHttpHandler = middleware.Authentication(verifier, a.cfg.Log)(appHttpHandler)
		a.cfg.Log.Info("Bearer authentication enabled for API endpoints")
	}
	appHttpHandler = middleware.Idempotency(a.idempotencyStore, "Idempotency-Key")(appHttpHandler)
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.StationRateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/ws", a.realtimeHandler)
	mux.Handle("/api/v1/realtime/", a.realtimeHandler)
	mux.Handle("/", a.appHttpHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Serve(ctx); err != nil {
		a.cfg.Log.Fatal("Application stopped with error", "error", err)
	}
}

// Serve runs the HTTP server and every registered runner until ctx is
// cancelled, then shuts down in order: server, runners, cleanup hooks.
func (a *Application) Serve(ctx context.Context) error {
	runCtx, cancelRunners := context.WithCancel(context.Background())
	defer cancelRunners()

	group, groupCtx := errgroup.WithContext(runCtx)
	for _, nr := range a.runners {
		nr := nr
		group.Go(func() error {
			a.cfg.Log.Info("Starting background runner", "runner", nr.name)
			err := nr.runner.Run(groupCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.cfg.Log.Error("Background runner failed", "runner", nr.name, "error", err)
				return err
			}
			a.cfg.Log.Info("Background runner stopped", "runner", nr.name)
			return nil
		})
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	var serveErr error
	select {
	case serveErr = <-serverErrors:
		a.cfg.Log.Error("HTTP server failed", "error", serveErr)
	case <-ctx.Done():
		a.cfg.Log.Info("Shutdown signal received")
	case <-groupCtx.Done():
		a.cfg.Log.Error("Background runner exited, shutting down")
	}

	runnerErr := a.gracefulShutdown(cancelRunners, group)
	if serveErr != nil {
		return serveErr
	}
	return runnerErr
}

func (a *Application) gracefulShutdown(cancelRunners context.CancelFunc, group *errgroup.Group) error {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	a.idempotencyStore.Stop()
	a.rateLimiter.Stop()
	cancelRunners()

	var runnerErr error
	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case runnerErr = <-done:
	case <-time.After(a.cfg.ShutdownTimeout):
		a.cfg.Log.Warn("Background runners did not stop in time")
	}

	for _, fn := range a.onShutdown {
		fn()
	}
	a.cfg.GracefulShutdown()

	a.cfg.Log.Info("Server stopped gracefully")
	return runnerErr
}
