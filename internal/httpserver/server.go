// Package httpserver exposes the query, alerting, and report API.
package httpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tinytelemetry/sift/internal/ingest"
	"github.com/tinytelemetry/sift/internal/model"
	"github.com/tinytelemetry/sift/internal/report"
	"github.com/tinytelemetry/sift/internal/storage"
)

// defaultLogLimit caps /api/logs responses unless the caller asks for more.
const defaultLogLimit = 1000

// QueryStore is the narrow store contract required by the HTTP API.
type QueryStore interface {
	model.EventReader
}

// AlertChecker runs the rule set over an event batch.
type AlertChecker interface {
	Evaluate(ctx context.Context, events []model.LogEvent, force bool) ([]model.AlertRecord, error)
}

// Reloader refreshes the event store from the raw log directory.
type Reloader interface {
	Refresh(ctx context.Context) (*ingest.LoadResult, error)
}

// StreamLoader normalizes an uploaded CSV stream without touching the raw
// directory. Satisfied by *ingest.Loader.
type StreamLoader interface {
	LoadReader(r io.Reader) ([]model.LogEvent, error)
}

// Server provides the HTTP API over the event store and alert engine.
type Server struct {
	addr      string
	logger    *zap.Logger
	store     QueryStore
	checker   AlertChecker
	history   storage.AlertHistoryStorage
	loader    Reloader
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. checker, history, and loader
// may be nil; the corresponding endpoints then report 503.
func NewServer(addr string, logger *zap.Logger, store QueryStore, checker AlertChecker, history storage.AlertHistoryStorage, loader Reloader) *Server {
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    addr,
		logger:  logger,
		store:   store,
		checker: checker,
		history: history,
		loader:  loader,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Router builds the gin handler. Exposed for tests.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/logs", s.handleLogs)
	r.GET("/api/stats", s.handleStats)
	r.GET("/api/report", s.handleReport)
	r.GET("/api/alerts", s.handleAlerts)
	r.POST("/api/alerts/check", s.handleAlertsCheck)
	r.POST("/api/reload", s.handleReload)
	r.POST("/api/upload", s.handleUpload)
	r.GET("/api/schema", s.handleSchema)
	r.POST("/api/query", s.handleQuery)

	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Handler:           s.Router(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	eventCount, err := s.store.TotalEventCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).String(),
		"event_count": eventCount,
	})
}

// filterFromQuery builds an EventFilter from the shared query parameters
// start, end, levels, service, and error_type.
func filterFromQuery(c *gin.Context) (model.EventFilter, error) {
	var f model.EventFilter

	if raw := c.Query("start"); raw != "" {
		t, _, err := parseTimeParam(raw)
		if err != nil {
			return f, fmt.Errorf("invalid start %q", raw)
		}
		f.Start = t
	}
	if raw := c.Query("end"); raw != "" {
		t, isDate, err := parseTimeParam(raw)
		if err != nil {
			return f, fmt.Errorf("invalid end %q", raw)
		}
		f.End = t
		f.EndIsDate = isDate
	}
	if raw := c.Query("levels"); raw != "" {
		for _, level := range strings.Split(raw, ",") {
			if level = strings.TrimSpace(level); level != "" {
				f.Levels = append(f.Levels, level)
			}
		}
	}
	f.Service = c.Query("service")
	f.ErrorType = c.Query("error_type")

	return f, nil
}

// parseTimeParam accepts a timestamp or a bare calendar date. The second
// return value reports the date case, where an end bound extends to the
// end of that day.
func parseTimeParam(raw string) (time.Time, bool, error) {
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("unrecognized time %q", raw)
}

func (s *Server) handleLogs(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}

	var events []model.LogEvent
	if query := c.Query("q"); query != "" {
		events, err = s.store.SearchEvents(query, filter, limit)
	} else {
		events, err = s.store.FilterEvents(filter, limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// handleStats serves the aggregations behind the dashboard views: counts
// per level, the most frequent messages of one level, and that level's
// hourly distribution.
func (s *Server) handleStats(c *gin.Context) {
	level := c.DefaultQuery("level", "ERROR")

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	levels, err := s.store.LevelCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate levels"})
		return
	}
	messages, err := s.store.MessageCounts(level, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate messages"})
		return
	}
	hourly, err := s.store.HourlyLevelCounts(level)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate hourly counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"levels":       levels,
		"top_messages": messages,
		"hourly":       hourly,
	})
}

func (s *Server) handleReport(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := s.store.FilterEvents(filter, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}

	switch format := c.DefaultQuery("format", "csv"); format {
	case "csv":
		c.Header("Content-Disposition", `attachment; filename="log_report.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(report.GenerateCSV(events, time.Now())))
	case "json":
		out, err := report.GenerateJSON(events, time.Now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render report"})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(out))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", format)})
	}
}

func (s *Server) handleAlerts(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert history not configured"})
		return
	}

	var start, end *time.Time
	if raw := c.Query("start"); raw != "" {
		t, _, err := parseTimeParam(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid start %q", raw)})
			return
		}
		start = &t
	}
	if raw := c.Query("end"); raw != "" {
		t, isDate, err := parseTimeParam(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid end %q", raw)})
			return
		}
		if isDate {
			t = t.Add(24*time.Hour - time.Second)
		}
		end = &t
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	records, err := s.history.List(c.Request.Context(), start, end, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read alert history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(records),
		"alerts": records,
	})
}

func (s *Server) handleAlertsCheck(c *gin.Context) {
	if s.checker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert engine not configured"})
		return
	}

	var req struct {
		Force bool `json:"force"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
	}

	events, err := s.store.FilterEvents(model.EventFilter{}, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}

	fired, err := s.checker.Evaluate(c.Request.Context(), events, req.Force)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alert evaluation failed"})
		return
	}
	if fired == nil {
		fired = []model.AlertRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(fired),
		"triggered": fired,
	})
}

func (s *Server) handleReload(c *gin.Context) {
	if s.loader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "loader not configured"})
		return
	}

	result, err := s.loader.Refresh(c.Request.Context())
	if err != nil {
		if s.logger != nil {
			s.logger.Error("Reload failed", zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reused":   result.Reused,
		"files":    result.Files,
		"events":   result.Events,
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleUpload parses a CSV batch posted in the request body and returns
// the normalized events without persisting them, so a caller can inspect
// an export before dropping it into the raw directory.
func (s *Server) handleUpload(c *gin.Context) {
	stream, ok := s.loader.(StreamLoader)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "loader not configured"})
		return
	}

	events, err := stream.LoadReader(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid CSV upload: %v", err)})
		return
	}

	var errors, warnings int
	for _, ev := range events {
		switch ev.Level {
		case "ERROR":
			errors++
		case "WARN":
			warnings++
		}
	}
	total := len(events)
	if len(events) > defaultLogLimit {
		events = events[:defaultLogLimit]
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    total,
		"errors":   errors,
		"warnings": warnings,
		"events":   events,
	})
}

func (s *Server) handleSchema(c *gin.Context) {
	description := s.store.GetSchemaDescription()

	tables, err := s.store.ExecuteQuery(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	schema := make(map[string][]map[string]string)
	for _, row := range tables {
		tableName := fmt.Sprintf("%v", row["table_name"])
		schema[tableName] = append(schema[tableName], map[string]string{
			"column": fmt.Sprintf("%v", row["column_name"]),
			"type":   fmt.Sprintf("%v", row["data_type"]),
		})
	}

	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": description,
		"tables":      schema,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}
