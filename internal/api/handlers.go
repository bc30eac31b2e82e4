package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/tick-averager/internal/listeners"
	"github.com/mohamedkhairy/tick-averager/internal/models"
	"github.com/mohamedkhairy/tick-averager/internal/pipeline"
	"github.com/mohamedkhairy/tick-averager/pkg/indicator"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
)

// maxTickBatch bounds the number of ticks accepted in one request
const maxTickBatch = 10000

// TickPipeline is the write side of the averaging pipeline
type TickPipeline interface {
	Submit(tick models.Tick) error
	SubmitBatch(ticks []models.Tick) error
	Cancel() error
	Resume() error
	Reset() error
	IsRunning() bool
}

// AverageReader exposes the latest computed averages
type AverageReader interface {
	Get(name string) (listeners.LatestValue, bool)
	All() []listeners.LatestValue
}

// CalculatorView is the JSON form of a configured calculator
type CalculatorView struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Window   int    `json:"window,omitempty"`
	Alpha    string `json:"alpha,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// CalculatorHandler lists the configured calculators and the kinds that can be built
type CalculatorHandler struct {
	calculators []CalculatorView
	kinds       []string
}

// NewCalculatorHandler creates a calculator handler from definitions and the registered kinds
func NewCalculatorHandler(defs []indicator.Definition, kinds []indicator.Kind) *CalculatorHandler {
	views := make([]CalculatorView, 0, len(defs))
	for _, def := range defs {
		view := CalculatorView{
			Name: def.Name,
			Kind: string(def.Kind),
		}
		switch def.Kind {
		case indicator.KindSMA:
			view.Window = def.Window
		case indicator.KindEMA:
			view.Window = def.Window
			view.Alpha = def.Alpha.String()
		case indicator.KindTWA:
			view.Duration = def.Duration.String()
		}
		views = append(views, view)
	}

	kindNames := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		kindNames = append(kindNames, string(kind))
	}
	return &CalculatorHandler{calculators: views, kinds: kindNames}
}

// ListCalculators handles GET /api/v1/calculators
func (h *CalculatorHandler) ListCalculators(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"calculators": h.calculators,
		"count":       len(h.calculators),
		"kinds":       h.kinds,
	})
}

// Has reports whether a calculator with name is configured
func (h *CalculatorHandler) Has(name string) bool {
	for _, c := range h.calculators {
		if c.Name == name {
			return true
		}
	}
	return false
}

// AverageHandler serves the latest averages
type AverageHandler struct {
	reader AverageReader
	known  func(string) bool
}

// NewAverageHandler creates an average handler; known may be nil
func NewAverageHandler(reader AverageReader, known func(string) bool) *AverageHandler {
	return &AverageHandler{
		reader: reader,
		known:  known,
	}
}

// ListAverages handles GET /api/v1/averages
func (h *AverageHandler) ListAverages(w http.ResponseWriter, r *http.Request) {
	averages := h.reader.All()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"averages": averages,
		"count":    len(averages),
	})
}

// GetAverage handles GET /api/v1/averages/{name}
func (h *AverageHandler) GetAverage(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if h.known != nil && !h.known(name) {
		respondWithError(w, http.StatusNotFound, "Calculator not found")
		return
	}

	latest, ok := h.reader.Get(name)
	if !ok {
		respondWithError(w, http.StatusNotFound, "No average emitted yet")
		return
	}

	respondWithJSON(w, http.StatusOK, latest)
}

// ControlHandler applies lifecycle commands to the pipeline
type ControlHandler struct {
	pipeline TickPipeline
}

// NewControlHandler creates a control handler
func NewControlHandler(p TickPipeline) *ControlHandler {
	return &ControlHandler{pipeline: p}
}

// Control handles POST /api/v1/control/{action}
func (h *ControlHandler) Control(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	var err error
	switch action {
	case "cancel":
		err = h.pipeline.Cancel()
	case "resume":
		err = h.pipeline.Resume()
	case "reset":
		err = h.pipeline.Reset()
	default:
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown action: %s", action))
		return
	}

	if err != nil {
		respondWithPipelineError(w, err)
		return
	}

	logger.Info("Control command accepted",
		logger.String("action", action),
		logger.String("trace_id", logger.GetTraceID(r.Context())),
	)

	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"action": action,
		"status": "accepted",
	})
}

// TickHandler accepts ticks over HTTP
type TickHandler struct {
	pipeline TickPipeline
}

// NewTickHandler creates a tick ingestion handler
func NewTickHandler(p TickPipeline) *TickHandler {
	return &TickHandler{pipeline: p}
}

// SubmitTicks handles POST /api/v1/ticks.
// The body is a single tick object or an array of ticks applied in order.
func (h *TickHandler) SubmitTicks(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	ticks, err := decodeTicks(body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(ticks) == 1 {
		err = h.pipeline.Submit(ticks[0])
	} else {
		err = h.pipeline.SubmitBatch(ticks)
	}
	if err != nil {
		respondWithPipelineError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": len(ticks),
	})
}

func decodeTicks(body []byte) ([]models.Tick, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("request body is empty")
	}

	var ticks []models.Tick
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &ticks); err != nil {
			return nil, errors.New("invalid request body")
		}
	} else {
		var tick models.Tick
		if err := json.Unmarshal(trimmed, &tick); err != nil {
			return nil, errors.New("invalid request body")
		}
		ticks = []models.Tick{tick}
	}

	if len(ticks) == 0 {
		return nil, errors.New("no ticks provided")
	}
	if len(ticks) > maxTickBatch {
		return nil, fmt.Errorf("too many ticks: at most %d per request", maxTickBatch)
	}
	for i, tick := range ticks {
		if err := tick.Validate(); err != nil {
			return nil, fmt.Errorf("invalid tick at index %d: %v", i, err)
		}
	}
	return ticks, nil
}

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	checks  map[string]func() error
	started time.Time
}

// NewHealthHandler creates a health handler; every check must pass for readiness
func NewHealthHandler(checks map[string]func() error) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		started: time.Now(),
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	for name, check := range h.checks {
		if err := check(); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not ready",
			"checks": failures,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Live handles GET /live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// PipelineCheck returns a readiness check that fails while the pipeline is stopped
func PipelineCheck(p TickPipeline) func() error {
	return func() error {
		if !p.IsRunning() {
			return pipeline.ErrNotRunning
		}
		return nil
	}
}

func respondWithPipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		respondWithError(w, http.StatusServiceUnavailable, "Pipeline queue is full")
	case errors.Is(err, pipeline.ErrNotRunning):
		respondWithError(w, http.StatusServiceUnavailable, "Pipeline is not running")
	default:
		respondWithError(w, http.StatusInternalServerError, "Failed to submit command")
	}
}
