package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"otcpool/core/state"
	"otcpool/native/common"
	"otcpool/native/otc"
	"otcpool/observability"
	telemetry "otcpool/observability/otel"
	"otcpool/services/otcd/journal"
	"otcpool/services/otcd/recon"
)

const maxBodyBytes = 1 << 20

// AuthConfig tunes signed request verification and operator access.
type AuthConfig struct {
	// MaxSkew bounds the distance between a request timestamp and the server clock.
	MaxSkew time.Duration
	// NonceTTL is how long consumed nonces are retained.
	NonceTTL time.Duration
	// OperatorSecret is the HMAC key for operator JWTs. Empty disables /ops.
	OperatorSecret string
	OperatorIssuer string
}

// RateLimit bounds requests per identity.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

// Config captures the dependencies required to construct the server.
type Config struct {
	ListenAddress string
	Store         *state.Store
	Engine        *otc.Engine
	Journal       *journal.Journal
	Hub           *Hub
	Reconciler    *recon.Reconciler
	Metrics       *observability.PoolMetrics
	Logger        *slog.Logger
	Auth          AuthConfig
	RateLimit     RateLimit
	Quota         common.Quota
	Now           func() time.Time
}

// Server exposes pool operations over HTTP.
type Server struct {
	cfg        Config
	store      *state.Store
	engine     *otc.Engine
	journal    *journal.Journal
	hub        *Hub
	reconciler *recon.Reconciler
	metrics    *observability.PoolMetrics
	logger     *slog.Logger
	limiter    *identityLimiter
	quota      *common.QuotaTracker
	operator   *operatorAuth
	now        func() time.Time

	router http.Handler
}

// New constructs a configured server.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Engine == nil {
		return nil, errors.New("server: store and engine are required")
	}
	if cfg.Journal == nil {
		return nil, errors.New("server: journal is required for nonce tracking")
	}
	if cfg.Auth.MaxSkew <= 0 {
		cfg.Auth.MaxSkew = 2 * time.Minute
	}
	// A timestamp is accepted for 2*MaxSkew, so nonces must outlive that window.
	if cfg.Auth.NonceTTL < 2*cfg.Auth.MaxSkew {
		cfg.Auth.NonceTTL = 2 * cfg.Auth.MaxSkew
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Logger)
	}
	s := &Server{
		cfg:        cfg,
		store:      cfg.Store,
		engine:     cfg.Engine,
		journal:    cfg.Journal,
		hub:        cfg.Hub,
		reconciler: cfg.Reconciler,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		limiter:    newIdentityLimiter(cfg.RateLimit, cfg.Now),
		quota:      common.NewQuotaTracker(cfg.Quota),
		operator:   newOperatorAuth(cfg.Auth.OperatorSecret, cfg.Auth.OperatorIssuer, cfg.Auth.MaxSkew),
		now:        cfg.Now,
	}
	cfg.Journal.Subscribe(s.hub.Publish)
	s.router = s.buildRouter()
	return s, nil
}

// Handler exposes the instrumented HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/pool", s.handleGetPool)
		v1.Get("/offers/{maker}", s.handleGetOffer)
		v1.Get("/offers/{maker}/quote", s.handleQuoteOffer)
		v1.Get("/balances/{owner}/{mint}", s.handleGetBalance)
		v1.Get("/events", s.handleListEvents)
		v1.Get("/events/stream", s.handleEventStream)

		v1.Group(func(signed chi.Router) {
			signed.Use(s.authenticate, s.idempotent, s.consumeNonce)

			signed.Post("/pool", s.handleInitPool)
			signed.Post("/pool/authority", s.handleTransferAuthority)
			signed.Post("/pool/treasury", s.handleUpdateTreasury)
			signed.Post("/pool/mints/{mint}", s.handleAddMint)
			signed.Delete("/pool/mints/{mint}", s.handleRemoveMint)
			signed.Post("/pool/partners/{partner}", s.handleAddPartner)
			signed.Delete("/pool/partners/{partner}", s.handleRemovePartner)
			signed.Post("/pool/pairs/{mintA}/{mintB}", s.handleAddPair)
			signed.Delete("/pool/pairs/{mintA}/{mintB}", s.handleRemovePair)
			signed.Post("/pool/pause", s.handlePause)
			signed.Post("/pool/resume", s.handleResume)

			signed.Post("/swaps", s.handleSwap)

			signed.Post("/offers", s.handleCreateOffer)
			signed.Post("/offers/{maker}/accept", s.handleAcceptOffer)
			signed.Post("/offers/{maker}/cancel", s.handleCancelOffer)
			signed.Post("/offers/{maker}/extend", s.handleExtendOffer)
			signed.Post("/offers/{maker}/close", s.handleCloseOffer)
		})
	})

	r.Route("/ops", func(ops chi.Router) {
		ops.Use(s.operator.middleware)
		ops.Post("/ledger/credit", s.handleCredit)
		ops.Post("/recon", s.handleRecon)
	})

	return otelhttp.NewHandler(r, "otcd")
}

// Run serves HTTP until ctx is cancelled and prunes expired nonces meanwhile.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go s.pruneNonces(ctx)

	s.logger.Info("otcd: http server listening", "addr", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) pruneNonces(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Auth.NonceTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := s.now().Add(-s.cfg.Auth.NonceTTL)
			if n, err := s.journal.PruneNonces(ctx, cutoff); err != nil {
				s.logger.Error("otcd: prune nonces failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("otcd: pruned nonces", "count", n)
			}
		}
	}
}

// execute runs fn as one pool transaction with tracing and metrics.
func (s *Server) execute(ctx context.Context, operation string, fn func(tx *state.Tx) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, "otc."+operation, trace.WithAttributes(attribute.String("otc.operation", operation)))
	defer span.End()
	start := time.Now()
	err := s.store.Update(fn)
	outcome := "ok"
	if err != nil {
		outcome = otc.KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.metrics.RecordOperation(ctx, operation, outcome, time.Since(start))
	return err
}

func (s *Server) view(fn func(tx *state.Tx) error) error {
	return s.store.View(fn)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	seq, head := s.journal.Head()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "journalSequence": seq, "journalHead": head, "streams": s.hub.Subscribers()})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"route", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimw.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
