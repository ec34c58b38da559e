package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/KaraAliOsman/Trabajo-3/internal/broadcast"
	"github.com/KaraAliOsman/Trabajo-3/internal/metrics"
	"github.com/KaraAliOsman/Trabajo-3/internal/store"
	"github.com/KaraAliOsman/Trabajo-3/internal/telemetry"
)

const defaultMissionStatus = "Planeada"

// server holds what the HTTP handlers share.
type server struct {
	store   store.Store
	chat    *broadcast.Channel
	metrics *metrics.Collectors
	logger  *log.Logger

	cadence   time.Duration
	missionID int64
	clock     telemetry.Clock
	seed      uint64
	streams   atomic.Uint64
	tap       streamTap
}

// streamTap hands out the observer that forwards one stream's samples.
type streamTap interface {
	ForStream(streamID string) telemetry.Observer
}

// newStreamer builds the simulation for one telemetry subscriber. Every
// stream gets its own generator; with a fixed seed stream n uses seed+n-1.
func (s *server) newStreamer(streamID string) *telemetry.Streamer {
	n := s.streams.Add(1)
	seed := s.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	opts := []telemetry.Option{
		telemetry.WithCadence(s.cadence),
		telemetry.WithMissionID(s.missionID),
		telemetry.WithLogger(s.logger),
		telemetry.WithMetrics(s.metrics),
	}
	if s.clock != nil {
		opts = append(opts, telemetry.WithClock(s.clock))
	}
	if s.tap != nil {
		opts = append(opts, telemetry.WithObserver(s.tap.ForStream(streamID)))
	}
	return telemetry.NewStreamer(telemetry.NewSeededGenerator(seed+n-1), s.store, opts...)
}

func (s *server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.Default())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// POST /api/login – accepts anyone
	router.POST("/api/login", s.login)

	router.GET("/api/missions", s.listMissions)
	router.POST("/api/missions", s.createMission)
	router.GET("/api/missions/:id", s.missionDetail)
	router.GET("/api/missions/:id/history", s.missionHistory)
	router.GET("/api/missions/:id/telemetry", s.missionTelemetry)

	router.GET("/api/telemetry/stream", s.streamTelemetry)
	router.GET("/socket", s.operatorSocket)

	return router
}

func (s *server) login(c *gin.Context) {
	var req struct {
		Username *string `json:"username"`
	}
	_ = c.ShouldBindJSON(&req)
	username := "operador"
	if req.Username != nil {
		username = *req.Username
	}
	c.JSON(http.StatusOK, gin.H{"operator": username, "token": "token-" + username})
}

type missionSummary struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (s *server) listMissions(c *gin.Context) {
	missions, err := s.store.ListMissions(c.Request.Context())
	if err != nil {
		s.logger.Printf("[console] list missions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not list missions"})
		return
	}
	out := make([]missionSummary, 0, len(missions))
	for _, m := range missions {
		out = append(out, missionSummary{ID: m.ID, Name: m.Name, Status: m.Status})
	}
	c.JSON(http.StatusOK, out)
}

// missionIDParam reports false, after answering 404, when :id is not a mission id.
func missionIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Mission not found"})
		return 0, false
	}
	return id, true
}

func (s *server) missionDetail(c *gin.Context) {
	id, ok := missionIDParam(c)
	if !ok {
		return
	}
	m, err := s.store.GetMission(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Mission not found"})
		return
	}
	if err != nil {
		s.logger.Printf("[console] get mission %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load mission"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *server) createMission(c *gin.Context) {
	var req struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		FlightPlan string `json:"flight_plan"`
	}
	_ = c.ShouldBindJSON(&req)

	m := store.Mission{
		Name:       strings.TrimSpace(req.Name),
		Status:     strings.TrimSpace(req.Status),
		FlightPlan: strings.TrimSpace(req.FlightPlan),
	}
	if m.Status == "" {
		m.Status = defaultMissionStatus
	}
	if m.Name == "" || m.FlightPlan == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing name or flight_plan"})
		return
	}

	created, err := s.store.CreateMission(c.Request.Context(), m)
	if err != nil {
		s.logger.Printf("[console] create mission: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create mission"})
		return
	}
	if err := s.store.AddEvent(c.Request.Context(), created.ID, store.StatusEvent{
		Status:  created.Status,
		Message: "Mission created",
		Source:  "console",
	}); err != nil {
		s.logger.Printf("[console] record creation of mission %d: %v", created.ID, err)
	}
	s.logger.Printf("[console] mission created: %d %q (%s)", created.ID, created.Name, created.Status)
	c.JSON(http.StatusCreated, created)
}

func (s *server) missionHistory(c *gin.Context) {
	id, ok := missionIDParam(c)
	if !ok {
		return
	}
	history, err := s.store.History(c.Request.Context(), id)
	if err != nil {
		s.logger.Printf("[console] history of mission %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load history"})
		return
	}
	if len(history) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Mission not found or no history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mission_id": id,
		"events":     history,
	})
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := telemetry.ParseTimestamp(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q", key, v)
	}
	return t, nil
}

func (s *server) missionTelemetry(c *gin.Context) {
	id, ok := missionIDParam(c)
	if !ok {
		return
	}
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}

	records, err := s.store.Range(c.Request.Context(), id, from, to, limit)
	if err != nil {
		s.logger.Printf("[console] telemetry of mission %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load telemetry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mission_id": id,
		"samples":    records,
	})
}

// streamTelemetry pushes one sample per tick as a server-sent event until the
// client goes away.
func (s *server) streamTelemetry(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	streamID := uuid.NewString()
	s.logger.Printf("[console] telemetry stream %s opened by %s", streamID, c.ClientIP())
	err := s.newStreamer(streamID).Run(c.Request.Context(), func(sample telemetry.Sample) error {
		payload, err := json.Marshal(sample.Frame())
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	s.logger.Printf("[console] telemetry stream %s to %s closed: %v", streamID, c.ClientIP(), err)
}

func (s *server) operatorSocket(c *gin.Context) {
	if err := s.chat.ServeWS(c.Writer, c.Request); err != nil {
		s.logger.Printf("[console] websocket upgrade failed: %v", err)
	}
}
