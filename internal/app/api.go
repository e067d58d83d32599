package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nammaroute/companion/internal/assistant"
	"github.com/nammaroute/companion/internal/guide"
	"github.com/nammaroute/companion/internal/observe"
	"github.com/nammaroute/companion/internal/transit"
	"github.com/nammaroute/companion/pkg/audio/capture"
)

const maxBodyBytes = 64 << 10

type errorBody struct {
	Error string `json:"error"`
}

type contentBody struct {
	Content string `json:"content"`
}

type startRequest struct {
	Language string              `json:"language"`
	Location *assistant.Location `json:"location"`
}

type touristRequest struct {
	Landmark string `json:"landmark"`
	Language string `json:"language"`
}

type itineraryRequest struct {
	City     string `json:"city"`
	Language string `json:"language"`
}

type safetyRequest struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	ReportType string  `json:"report_type"`
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)

	if a.telemetry != nil {
		mux.Handle("GET /metrics", a.telemetry.Handler())
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	mux.HandleFunc("GET /v1/assistant", a.handleStatus)
	mux.HandleFunc("POST /v1/assistant/start", a.handleStart)
	mux.HandleFunc("POST /v1/assistant/stop", a.handleStop)
	mux.HandleFunc("POST /v1/assistant/interrupt", a.handleInterrupt)
	mux.HandleFunc("GET /v1/assistant/voices", a.handleVoices)

	mux.HandleFunc("GET /v1/buses", a.handleBuses)
	mux.HandleFunc("GET /v1/buses/{id}", a.handleBus)
	mux.HandleFunc("GET /v1/stops", a.handleStops)
	mux.HandleFunc("GET /v1/landmarks", a.handleLandmarks)
	mux.HandleFunc("GET /v1/landmarks/{id}", a.handleLandmark)
	mux.HandleFunc("GET /v1/rooms", a.handleRooms)

	mux.HandleFunc("POST /v1/guide/tourist", a.handleTourist)
	mux.HandleFunc("POST /v1/guide/itinerary", a.handleItinerary)
	mux.HandleFunc("POST /v1/guide/safety", a.handleSafety)

	return observe.Middleware(a.metrics)(mux)
}

// ─── Assistant ───────────────────────────────────────────────────────────────

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.assistant.Status())
}

func (a *App) handleVoices(w http.ResponseWriter, _ *http.Request) {
	voices := a.assistant.Voices()
	if voices == nil {
		voices = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"voices": voices})
}

func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Language != "" {
		a.assistant.SetLanguage(req.Language)
	}
	if loc := req.Location; loc != nil {
		a.assistant.SetLocation(loc.Lat, loc.Lng)
	}

	if err := a.assistant.Start(r.Context()); err != nil {
		observe.WithSpan(r.Context(), a.log).Warn("assistant start failed", "err", err)
		writeError(w, startStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a.assistant.Status())
}

func startStatus(err error) int {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, assistant.ErrStopped):
		return http.StatusConflict
	case errors.Is(err, assistant.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (a *App) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := a.assistant.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, a.assistant.Status())
}

func (a *App) handleInterrupt(w http.ResponseWriter, _ *http.Request) {
	if err := a.assistant.Interrupt(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, a.assistant.Status())
}

// ─── Transit ─────────────────────────────────────────────────────────────────

func (a *App) handleBuses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	buses := a.catalog.SearchBuses(transit.Query{
		Origin:      q.Get("origin"),
		Destination: q.Get("destination"),
		SortByETA:   q.Get("sort") == "eta",
	})
	writeJSON(w, http.StatusOK, buses)
}

func (a *App) handleBus(w http.ResponseWriter, r *http.Request) {
	bus, err := a.catalog.Bus(r.PathValue("id"))
	if err != nil {
		writeError(w, lookupStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, bus)
}

func (a *App) handleStops(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"origins":      a.catalog.Origins(),
		"destinations": a.catalog.Destinations(),
	})
}

func (a *App) handleLandmarks(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("q")
	if name == "" {
		writeJSON(w, http.StatusOK, a.catalog.Landmarks())
		return
	}
	lm, err := a.catalog.FindLandmark(name)
	if err != nil {
		writeError(w, lookupStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, []transit.Landmark{lm})
}

func (a *App) handleLandmark(w http.ResponseWriter, r *http.Request) {
	lm, err := a.catalog.Landmark(r.PathValue("id"))
	if err != nil {
		writeError(w, lookupStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, lm)
}

func (a *App) handleRooms(w http.ResponseWriter, r *http.Request) {
	maxRent := 0
	if s := r.URL.Query().Get("max_rent"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("max_rent must be a non-negative integer"))
			return
		}
		maxRent = n
	}
	writeJSON(w, http.StatusOK, a.catalog.Rooms(maxRent))
}

func lookupStatus(err error) int {
	if errors.Is(err, transit.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// ─── Guide ───────────────────────────────────────────────────────────────────

func (a *App) handleTourist(w http.ResponseWriter, r *http.Request) {
	var req touristRequest
	if !a.guideRequest(w, r, &req) {
		return
	}
	// Resolve spoken or misspelt names against the catalog when possible.
	name := req.Landmark
	if lm, err := a.catalog.FindLandmark(name); err == nil {
		name = lm.Name
	}
	text, err := a.guide.TouristContent(r.Context(), name, req.Language)
	a.writeGuide(w, r, text, err)
}

func (a *App) handleItinerary(w http.ResponseWriter, r *http.Request) {
	var req itineraryRequest
	if !a.guideRequest(w, r, &req) {
		return
	}
	text, err := a.guide.Itinerary(r.Context(), req.City, req.Language)
	a.writeGuide(w, r, text, err)
}

func (a *App) handleSafety(w http.ResponseWriter, r *http.Request) {
	var req safetyRequest
	if !a.guideRequest(w, r, &req) {
		return
	}
	text, err := a.guide.SafetyProtocol(r.Context(), req.Lat, req.Lng, req.ReportType)
	a.writeGuide(w, r, text, err)
}

// guideRequest decodes the body into v and reports whether the handler
// should continue.
func (a *App) guideRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if a.guide == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("guide is not configured"))
		return false
	}
	if err := decode(r, v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (a *App) writeGuide(w http.ResponseWriter, r *http.Request, text string, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, contentBody{Content: text})
	case errors.Is(err, guide.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err)
	default:
		observe.WithSpan(r.Context(), a.log).Warn("guide generation failed", "err", err)
		writeError(w, http.StatusBadGateway, err)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// decodeOptional is decode for endpoints whose body may be empty.
func decodeOptional(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	if err := decode(r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
