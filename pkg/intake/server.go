package intake

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"msgledger/pkg/engine"
	"msgledger/pkg/logger"
	"msgledger/pkg/resolve"
	"msgledger/pkg/snapshot"
)

// Server receives raw transport frames and raw directory snapshots from
// the network-hooking collaborator. Frames are the hot path, hence
// fasthttp; bodies are opaque and handed to the engine untouched.
type Server struct {
	engine   *engine.Engine
	ingestor *snapshot.Ingestor
	observed *resolve.Observed
	limiter  *rate.Limiter
}

// Config tunes the intake server.
type Config struct {
	RPS   float64
	Burst int
}

func New(e *engine.Engine, ing *snapshot.Ingestor, obs *resolve.Observed, cfg Config) *Server {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 500
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1000
	}
	return &Server{
		engine:   e,
		ingestor: ing,
		observed: obs,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Handler is the fasthttp request handler.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/v1/frames":
		s.handleFrame(ctx)
	case "/v1/snapshot":
		s.handleSnapshot(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) handleFrame(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
		return
	}
	s.captureObserved(ctx)

	trace := uuid.NewString()
	if err := s.engine.EnqueueFrame(ctx.PostBody(), trace); err != nil {
		if errors.Is(err, engine.ErrQueueFull) {
			ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	logger.Debug("frame_accepted", "trace", trace, "len", len(ctx.PostBody()))
	ctx.SetStatusCode(fasthttp.StatusAccepted)
}

func (s *Server) handleSnapshot(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	s.captureObserved(ctx)

	// snapshots race with live traffic by design; the merge rules make
	// the outcome order-independent
	body := append([]byte(nil), ctx.PostBody()...)
	go func() {
		if err := s.ingestor.Ingest(body); err != nil {
			logger.Warn("snapshot_ingest_failed", "error", err)
		}
	}()
	ctx.SetStatusCode(fasthttp.StatusAccepted)
}

// captureObserved records rendering-context headers the hooking layer
// forwards; they feed the resolver's heading and location probes.
func (s *Server) captureObserved(ctx *fasthttp.RequestCtx) {
	if h := ctx.Request.Header.Peek("X-Thread-Heading"); len(h) > 0 {
		s.observed.SetHeading(string(h))
	}
	if p := ctx.Request.Header.Peek("X-Client-Path"); len(p) > 0 {
		s.observed.SetPath(string(p))
	}
}

// ListenAndServe runs the intake server on addr until it fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &fasthttp.Server{
		Handler:            s.Handler,
		Name:               "msgledger-intake",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 4 << 20,
	}
	logger.Info("intake_listening", "addr", addr)
	return srv.ListenAndServe(addr)
}
