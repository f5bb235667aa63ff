// Package server exposes a session over an HTTP JSON API with a
// server-sent event stream of vehicle frames.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/selectmap/internal/buildings"
	"github.com/MeKo-Tech/selectmap/internal/geojson"
	"github.com/MeKo-Tech/selectmap/internal/selection"
	"github.com/MeKo-Tech/selectmap/internal/session"
	"github.com/MeKo-Tech/selectmap/internal/vehicles"
)

// StatusProvider reports vehicle poller status.
type StatusProvider interface {
	Status() vehicles.Status
}

// Config configures a Server.
type Config struct {
	Session *session.Session
	// Poller is optional; without it the status endpoint reports an inactive poller.
	Poller     StatusProvider
	CORSOrigin string
	// StreamBuffer is the number of frames queued per stream subscriber.
	StreamBuffer int
	Logger       *slog.Logger
}

// Server owns the HTTP routes and the frame hub.
type Server struct {
	session    *session.Session
	poller     StatusProvider
	hub        *Hub
	corsOrigin string
	logger     *slog.Logger
	engine     *gin.Engine
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Session == nil {
		return nil, errors.New("server requires a session")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 4
	}

	s := &Server{
		session:    cfg.Session,
		poller:     cfg.Poller,
		hub:        NewHub(cfg.StreamBuffer),
		corsOrigin: cfg.CORSOrigin,
		logger:     cfg.Logger,
	}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the frame hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// PublishFrame renders the current vehicle frame and pushes it to stream
// subscribers. It does nothing without subscribers.
func (s *Server) PublishFrame(time.Time) {
	if s.hub.Len() == 0 {
		return
	}
	data, err := s.frameJSON()
	if err != nil {
		s.logger.Error("failed to encode frame", "error", err)
		return
	}
	s.hub.Publish(data)
}

// Close disconnects stream subscribers.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	if s.corsOrigin != "" {
		r.Use(s.cors())
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")
	{
		api.GET("/state", s.getState)
		api.PUT("/camera", s.putCamera)

		api.POST("/selection/arm", s.postArm)
		api.POST("/selection/clear", s.postClear)

		api.POST("/pointer/down", s.postPointerDown)
		api.POST("/pointer/move", s.postPointerMove)
		api.POST("/pointer/up", s.postPointerUp)
		api.POST("/surface/reset", s.postSurfaceReset)

		api.GET("/sources/:name", s.getSource)

		api.POST("/buildings/build", s.postBuild)
		api.GET("/buildings/at", s.getBuildingAt)

		api.PUT("/visibility", s.putVisibility)

		api.GET("/vehicles/frame", s.getFrame)
		api.GET("/vehicles/status", s.getVehicleStatus)

		api.GET("/stream", s.getStream)
	}
	return r
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", s.corsOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/api/stream" {
			return
		}
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.State())
}

type cameraRequest struct {
	Center  [2]float64 `json:"center"`
	Zoom    float64    `json:"zoom" binding:"gte=0,lte=24"`
	Pitch   float64    `json:"pitch" binding:"gte=0,lte=85"`
	Bearing float64    `json:"bearing" binding:"gte=-360,lte=360"`
}

func (s *Server) putCamera(c *gin.Context) {
	var req cameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cam := session.Camera{
		Center:  orb.Point(req.Center),
		Zoom:    req.Zoom,
		Pitch:   req.Pitch,
		Bearing: req.Bearing,
	}
	s.session.SetCamera(cam)
	c.JSON(http.StatusOK, cam)
}

func (s *Server) postArm(c *gin.Context) {
	s.session.Arm()
	c.JSON(http.StatusOK, s.session.State())
}

func (s *Server) postClear(c *gin.Context) {
	s.session.Clear()
	c.JSON(http.StatusOK, s.session.State())
}

type pointerRequest struct {
	Lon    *float64 `json:"lon" binding:"required,gte=-180,lte=180"`
	Lat    *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Button int      `json:"button"`
}

func (r pointerRequest) point() orb.Point {
	return orb.Point{*r.Lon, *r.Lat}
}

func (s *Server) postPointerDown(c *gin.Context) {
	var req pointerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.session.PointerDown(selection.Button(req.Button), req.point())
	c.JSON(http.StatusOK, s.session.State().Selection)
}

func (s *Server) postPointerMove(c *gin.Context) {
	var req pointerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.session.PointerMove(req.point())
	c.JSON(http.StatusOK, s.session.State().Selection)
}

func (s *Server) postPointerUp(c *gin.Context) {
	s.session.PointerUp()
	c.JSON(http.StatusOK, s.session.State().Selection)
}

func (s *Server) postSurfaceReset(c *gin.Context) {
	s.session.SurfaceReset()
	c.JSON(http.StatusOK, s.session.State().Selection)
}

func (s *Server) getSource(c *gin.Context) {
	name, err := geojson.ParseSourceName(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	fc, err := s.session.Source(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, fc)
}

type buildResponse struct {
	Built  bool   `json:"built"`
	Count  int    `json:"count"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) postBuild(c *gin.Context) {
	n, err := s.session.Build(c.Request.Context())
	switch {
	case errors.Is(err, buildings.ErrNoUsableSelection), errors.Is(err, session.ErrNoDataset):
		c.JSON(http.StatusOK, buildResponse{Reason: err.Error()})
	case err != nil:
		s.logger.Error("build failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, buildResponse{Built: true, Count: n})
	}
}

type pointQuery struct {
	Lon *float64 `form:"lon" binding:"required,gte=-180,lte=180"`
	Lat *float64 `form:"lat" binding:"required,gte=-90,lte=90"`
}

func (s *Server) getBuildingAt(c *gin.Context) {
	var q pointQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	b, ok := s.session.BuildingAt(orb.Point{*q.Lon, *q.Lat})
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no building at point"})
		return
	}
	fc := geojson.BuildingsToGeoJSON([]buildings.Building{b})
	if len(fc.Features) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no building at point"})
		return
	}
	c.JSON(http.StatusOK, fc.Features[0])
}

func (s *Server) putVisibility(c *gin.Context) {
	var req session.VisibilityUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.SetVisibility(req))
}

func (s *Server) getFrame(c *gin.Context) {
	fc, err := s.session.Source(geojson.SourceVehicles)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, fc)
}

func (s *Server) getVehicleStatus(c *gin.Context) {
	if s.poller == nil {
		c.JSON(http.StatusOK, vehicles.Status{})
		return
	}
	c.JSON(http.StatusOK, s.poller.Status())
}

// getStream sends the current frame immediately, then every published frame.
func (s *Server) getStream(c *gin.Context) {
	id, frames, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Subscriber-ID", id)
	c.Status(http.StatusOK)

	s.logger.Debug("stream subscriber connected", "subscriber", id, "subscribers", s.hub.Len())
	defer s.logger.Debug("stream subscriber disconnected", "subscriber", id)

	initial, err := s.frameJSON()
	if err != nil {
		return
	}
	if err := writeEvent(c, initial); err != nil {
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-frames:
			if !ok {
				return
			}
			if err := writeEvent(c, data); err != nil {
				return
			}
		}
	}
}

func (s *Server) frameJSON() ([]byte, error) {
	fc, err := s.session.Source(geojson.SourceVehicles)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fc)
}

func writeEvent(c *gin.Context, data []byte) error {
	if _, err := fmt.Fprintf(c.Writer, "event: frame\ndata: %s\n\n", data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
