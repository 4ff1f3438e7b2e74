package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"durable-lists/internal/apperr"
	"durable-lists/pkg/flight"
	"durable-lists/pkg/quest"
)

// Server is the HTTP API server.
type Server struct {
	quests  *quest.Queue
	flights *flight.List
	mux     *http.ServeMux
	handler http.Handler
}

// New creates a new Server.
func New(quests *quest.Queue, flights *flight.List) *Server {
	s := &Server{
		quests:  quests,
		flights: flights,
		mux:     http.NewServeMux(),
	}
	s.routes()
	s.handler = logRequests(s.mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Characters and quests
	s.mux.HandleFunc("POST /api/characters", s.handleCharacterCreate)
	s.mux.HandleFunc("GET /api/characters/{id}", s.handleCharacterGet)
	s.mux.HandleFunc("GET /api/characters/{id}/quests", s.handleQueueList)
	s.mux.HandleFunc("POST /api/characters/{id}/quests/{questID}", s.handleEnqueue)
	s.mux.HandleFunc("POST /api/characters/{id}/complete", s.handleDequeue)
	s.mux.HandleFunc("POST /api/quests", s.handleQuestCreate)
	s.mux.HandleFunc("GET /api/quests", s.handleQuestList)
	s.mux.HandleFunc("GET /api/quests/search", s.handleQuestSearch)
	s.mux.HandleFunc("GET /api/quests/{id}", s.handleQuestGet)

	// Flights
	s.mux.HandleFunc("POST /api/flights", s.handleFlightAdd)
	s.mux.HandleFunc("POST /api/flights/insert", s.handleFlightInsert)
	s.mux.HandleFunc("GET /api/flights", s.handleFlightSequence)
	s.mux.HandleFunc("GET /api/flights/all", s.handleFlightAll)
	s.mux.HandleFunc("GET /api/flights/size", s.handleFlightSize)
	s.mux.HandleFunc("GET /api/flights/front", s.handleFlightPeekFront)
	s.mux.HandleFunc("GET /api/flights/back", s.handleFlightPeekBack)
	s.mux.HandleFunc("DELETE /api/flights/front", s.handleFlightRemoveFront)
	s.mux.HandleFunc("DELETE /api/flights/back", s.handleFlightRemoveBack)
	s.mux.HandleFunc("DELETE /api/flights/positions/{position}", s.handleFlightRemoveAt)
	s.mux.HandleFunc("PATCH /api/flights/order", s.handleFlightReorder)
	s.mux.HandleFunc("GET /api/flights/verify", s.handleFlightVerify)
	s.mux.HandleFunc("GET /api/flights/{id}", s.handleFlightGet)

	// System
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	characters, quests, err := s.quests.Counts(ctx)
	if err != nil {
		writeFailure(w, err)
		return
	}
	linked, err := s.flights.Len(ctx)
	if err != nil {
		writeFailure(w, err)
		return
	}
	flights, err := s.flights.Flights(ctx)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{
		"characters":     characters,
		"quests":         quests,
		"flights":        len(flights),
		"flights_linked": linked,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write json", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// writeFailure maps an engine error to its HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), apperr.Code(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrEmptyList):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrOutOfRange), errors.Is(err, apperr.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, 400, "INVALID", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs one line per request, at warn for 4xx and error for 5xx.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch {
		case rec.status >= 500:
			level = slog.LevelError
		case rec.status >= 400:
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}
