// Package gateway serves the client query surface over HTTP: lookups,
// key histories, certificates and audits of certified epochs, and the
// submission of updates. Responses are the same protocol.Response
// JSON the socket interface returns, so clients verify them the same
// way.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coniks-sys/keywitness/metrics"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/utils/binutils"
	"github.com/gin-gonic/gin"
)

// Config is the [gateway] section of the publisher's config.
type Config struct {
	Address      string `toml:"address"`
	AllowPublish bool   `toml:"allow_publish,omitempty"`
	// RedisAddress enables rate limiting of RateLimit requests per
	// client and WindowMs.
	RedisAddress string `toml:"redis_address,omitempty"`
	RateLimit    int    `toml:"rate_limit,omitempty"`
	WindowMs     int64  `toml:"window_ms,omitempty"`
}

// Backend answers the queries. *directory.Directory implements it.
type Backend interface {
	Lookup(identity string, epoch uint64) (*protocol.LookupProof, error)
	KeyHistory(identity string, epoch uint64) (*protocol.KeyHistory, error)
	GetCertificate(epoch uint64) (*protocol.Certificate, error)
	Audit(from, to uint64) (*protocol.Audit, error)
	LatestCertified() uint64
}

// Submitter queues updates for the next epochs.
type Submitter func(ctx context.Context, u protocol.Update) error

// A Gateway is the HTTP front of a directory.
type Gateway struct {
	r       *gin.Engine
	backend Backend
	submit  Submitter
	limiter Limiter
	log     *binutils.Logger
	metrics *metrics.Metrics
	srv     *http.Server
}

// Options are the optional parts of a Gateway.
type Options struct {
	// Submit enables POST /v1/updates.
	Submit  Submitter
	Limiter Limiter
	Logger  *binutils.Logger
	Metrics *metrics.Metrics
}

// New builds the gateway's routes.
func New(backend Backend, opts Options) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	logger := opts.Logger
	if logger == nil {
		logger = binutils.NewNopLogger()
	}
	g := &Gateway{
		r:       r,
		backend: backend,
		submit:  opts.Submit,
		limiter: opts.Limiter,
		log:     logger.Named("gateway"),
		metrics: opts.Metrics,
	}
	g.srv = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	g.routes()
	return g
}

func (g *Gateway) routes() {
	g.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "certified": g.backend.LatestCertified()})
	})
	if g.metrics != nil {
		g.r.GET("/metrics", gin.WrapH(g.metrics.Handler()))
	}

	v1 := g.r.Group("/v1", g.rateLimit)
	{
		v1.GET("/lookup/:identity", g.handleLookup)
		v1.GET("/history/:identity", g.handleKeyHistory)
		v1.GET("/certificates/:epoch", g.handleCertificate)
		v1.GET("/audit", g.handleAudit)
		if g.submit != nil {
			v1.POST("/updates", g.handleUpdates)
		}
	}
}

// Handler returns the gateway as an http.Handler.
func (g *Gateway) Handler() http.Handler {
	return g.r
}

// ListenAndServe serves on addr until Shutdown.
func (g *Gateway) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	g.log.Info("Gateway listening", "address", addr)
	if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server started by ListenAndServe.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.srv.Shutdown(ctx)
}

func (g *Gateway) rateLimit(c *gin.Context) {
	if g.limiter == nil {
		return
	}
	ok, err := g.limiter.Allow(c.Request.Context(), c.ClientIP())
	if err != nil {
		// fail open
		g.log.Warn("rate limiter unavailable", "error", err)
		return
	}
	if !ok {
		g.write(c, http.StatusTooManyRequests, protocol.NewErrorResponse(protocol.ErrDirectory))
		c.Abort()
	}
}

// statusOf maps a protocol error to an HTTP status.
func statusOf(code protocol.ErrorCode) int {
	switch code {
	case protocol.ReqSuccess, protocol.ReqNameNotFound:
		return http.StatusOK
	case protocol.ErrMalformedMessage, protocol.ErrMalformedUpdate:
		return http.StatusBadRequest
	case protocol.ErrNotFound, protocol.ErrEpochNotCertified:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (g *Gateway) write(c *gin.Context, status int, res *protocol.Response) {
	c.JSON(status, res)
	g.metrics.Request(c.FullPath(), status)
}

func (g *Gateway) respond(c *gin.Context, d protocol.DirectoryResponse, err error) {
	if err != nil {
		code, ok := err.(protocol.ErrorCode)
		if !ok {
			g.log.Error("request failed", "path", c.Request.URL.Path, "error", err)
			code = protocol.ErrDirectory
		}
		g.write(c, statusOf(code), protocol.NewErrorResponse(code))
		return
	}
	res := protocol.NewResponse(d)
	if p, ok := d.(*protocol.LookupProof); ok {
		res = protocol.NewLookupResponse(p)
	}
	g.write(c, http.StatusOK, res)
}

func epochQuery(c *gin.Context, name string) (uint64, bool) {
	s := c.Query(name)
	if s == "" {
		return 0, true
	}
	e, err := strconv.ParseUint(s, 10, 64)
	return e, err == nil
}

func (g *Gateway) handleLookup(c *gin.Context) {
	epoch, ok := epochQuery(c, "epoch")
	if !ok {
		g.respond(c, nil, protocol.ErrMalformedMessage)
		return
	}
	p, err := g.backend.Lookup(c.Param("identity"), epoch)
	if err != nil {
		g.respond(c, nil, err)
		return
	}
	g.respond(c, p, nil)
}

func (g *Gateway) handleKeyHistory(c *gin.Context) {
	epoch, ok := epochQuery(c, "epoch")
	if !ok {
		g.respond(c, nil, protocol.ErrMalformedMessage)
		return
	}
	h, err := g.backend.KeyHistory(c.Param("identity"), epoch)
	if err != nil {
		g.respond(c, nil, err)
		return
	}
	g.respond(c, h, nil)
}

func (g *Gateway) handleCertificate(c *gin.Context) {
	var (
		epoch uint64
		err   error
	)
	if s := c.Param("epoch"); s != "latest" {
		if epoch, err = strconv.ParseUint(s, 10, 64); err != nil {
			g.respond(c, nil, protocol.ErrMalformedMessage)
			return
		}
	}
	cert, err := g.backend.GetCertificate(epoch)
	if err != nil {
		g.respond(c, nil, err)
		return
	}
	g.respond(c, cert, nil)
}

func (g *Gateway) handleAudit(c *gin.Context) {
	from, ok1 := epochQuery(c, "from")
	to, ok2 := epochQuery(c, "to")
	if !ok1 || !ok2 {
		g.respond(c, nil, protocol.ErrMalformedMessage)
		return
	}
	if to == 0 {
		to = g.backend.LatestCertified()
	}
	a, err := g.backend.Audit(from, to)
	if err != nil {
		g.respond(c, nil, err)
		return
	}
	g.respond(c, a, nil)
}

func (g *Gateway) handleUpdates(c *gin.Context) {
	var req protocol.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Updates) == 0 {
		g.respond(c, nil, protocol.ErrMalformedMessage)
		return
	}
	for _, u := range req.Updates {
		if u.Identity == "" || len(u.Value) == 0 {
			g.respond(c, nil, protocol.ErrMalformedUpdate)
			return
		}
	}
	for _, u := range req.Updates {
		if err := g.submit(c.Request.Context(), u); err != nil {
			g.respond(c, nil, err)
			return
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": len(req.Updates)})
	g.metrics.Request(c.FullPath(), http.StatusAccepted)
}
