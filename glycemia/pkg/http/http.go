package http

import (
	"context"
	"errors"
	"ichor/glycemia/defs"
	"ichor/glycemia/pkg/metrics"
	"ichor/glycemia/pkg/mg"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const DefaultAddr = ":4242"

type httpStore interface {
	mg.GlucoseStore
	mg.SnapshotStore
}

type HttpServer struct {
	Store    httpStore
	Target   defs.TargetRange
	Location *time.Location
	Logger   *zap.Logger

	Engine *gin.Engine
}

// MetricsRequest computes metrics over the posted readings. Target defaults to
// the configured range.
type MetricsRequest struct {
	Target   *defs.TargetRange `json:"target"`
	Readings []defs.Reading    `json:"readings" binding:"required,min=1"`
}

func New(s httpStore, target defs.TargetRange, loc *time.Location, logger *zap.Logger) *HttpServer {
	hs := &HttpServer{
		Store:    s,
		Target:   target,
		Location: loc,
		Logger:   logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), hs.logRequests)
	r.GET("/glucose", hs.getGlucose)
	r.GET("/metrics", hs.getMetrics)
	r.POST("/metrics", hs.postMetrics)
	r.GET("/snapshots", hs.getSnapshots)
	hs.Engine = r

	return hs
}

func (s *HttpServer) Run(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	s.Logger.Info("serving http", zap.String("addr", addr))
	return s.Engine.Run(addr)
}

func (s *HttpServer) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.Logger.Debug("handled request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)),
	)
}

// window parses start and end as unix seconds.
func window(c *gin.Context) (time.Time, time.Time, bool) {
	startUnix, err := strconv.ParseInt(c.Query("start"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "expected unix timestamp for start")
		return time.Time{}, time.Time{}, false
	}
	endUnix, err := strconv.ParseInt(c.Query("end"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "expected unix timestamp for end")
		return time.Time{}, time.Time{}, false
	}
	if endUnix < startUnix {
		c.String(http.StatusBadRequest, "end before start")
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(startUnix, 0), time.Unix(endUnix, 0), true
}

func (s *HttpServer) getGlucose(c *gin.Context) {
	start, end, ok := window(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), defs.TimeoutInterval)
	defer cancel()

	glucose, err := s.Store.ReadGlucose(ctx, start, end)
	if err != nil {
		c.String(http.StatusInternalServerError, "unable to read glucose: %v", err)
		return
	}

	c.JSON(http.StatusOK, glucose)
}

func (s *HttpServer) getMetrics(c *gin.Context) {
	start, end, ok := window(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), defs.TimeoutInterval)
	defer cancel()

	rs, err := s.Store.ReadGlucose(ctx, start, end)
	if err != nil {
		c.String(http.StatusInternalServerError, "unable to read glucose: %v", err)
		return
	}

	s.respond(c, rs, s.Target)
}

func (s *HttpServer) postMetrics(c *gin.Context) {
	var req MetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid request: %v", err)
		return
	}

	target := s.Target
	if req.Target != nil {
		target = *req.Target
	}
	s.respond(c, dedup(req.Readings), target)
}

// dedup keeps the last of consecutive readings sharing a timestamp.
func dedup(rs []defs.Reading) []defs.Reading {
	out := rs[:0]
	for _, r := range rs {
		if n := len(out); n > 0 && out[n-1].Time.Equal(r.Time) {
			out[n-1] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *HttpServer) respond(c *gin.Context, rs []defs.Reading, target defs.TargetRange) {
	for i := range rs {
		rs[i].Time = rs[i].Time.In(s.Location)
	}

	snap, err := metrics.Compute(rs, target)
	var inErr *metrics.InputError
	switch {
	case errors.As(err, &inErr):
		c.String(http.StatusBadRequest, err.Error())
		return
	case err != nil:
		c.String(http.StatusInternalServerError, "unable to compute metrics: %v", err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (s *HttpServer) getSnapshots(c *gin.Context) {
	start, end, ok := window(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), defs.TimeoutInterval)
	defer cancel()

	snaps, err := s.Store.ReadSnapshots(ctx, start, end)
	if err != nil {
		c.String(http.StatusInternalServerError, "unable to read snapshots: %v", err)
		return
	}

	c.JSON(http.StatusOK, snaps)
}
