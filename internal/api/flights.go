package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"durable-lists/pkg/flight"
)

type flightRequest struct {
	ID          string     `json:"id"` // existing detached flight; empty creates one
	Code        string     `json:"code"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Origin      string     `json:"origin"`
	Destination string     `json:"destination"`
	Emergency   bool       `json:"emergency"`
	Position    *int       `json:"position"`
}

func (req *flightRequest) flight() *flight.Flight {
	f := &flight.Flight{
		ID:          req.ID,
		Code:        req.Code,
		Status:      req.Status,
		Origin:      req.Origin,
		Destination: req.Destination,
	}
	if req.ScheduledAt != nil {
		f.ScheduledAt = *req.ScheduledAt
	}
	return f
}

func (s *Server) handleFlightAdd(w http.ResponseWriter, r *http.Request) {
	var req flightRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := s.flights.Add(r.Context(), req.flight(), req.Emergency)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 201, f)
}

func (s *Server) handleFlightInsert(w http.ResponseWriter, r *http.Request) {
	var req flightRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Position == nil {
		writeError(w, 400, "INVALID", "position is required")
		return
	}
	f, err := s.flights.InsertAt(r.Context(), req.flight(), *req.Position)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 201, f)
}

func (s *Server) handleFlightSequence(w http.ResponseWriter, r *http.Request) {
	flights, err := s.flights.Sequence(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, flights)
}

func (s *Server) handleFlightAll(w http.ResponseWriter, r *http.Request) {
	flights, err := s.flights.Flights(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, flights)
}

func (s *Server) handleFlightSize(w http.ResponseWriter, r *http.Request) {
	n, err := s.flights.Len(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, map[string]int{"size": n})
}

func (s *Server) handleFlightPeekFront(w http.ResponseWriter, r *http.Request) {
	s.writePeek(w, r, s.flights.PeekFront)
}

func (s *Server) handleFlightPeekBack(w http.ResponseWriter, r *http.Request) {
	s.writePeek(w, r, s.flights.PeekBack)
}

func (s *Server) writePeek(w http.ResponseWriter, r *http.Request, peek func(context.Context) (*flight.Flight, bool, error)) {
	f, ok, err := peek(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	if !ok {
		writeError(w, 404, "EMPTY_LIST", "no flights in the list")
		return
	}
	writeJSON(w, 200, f)
}

func (s *Server) handleFlightRemoveFront(w http.ResponseWriter, r *http.Request) {
	f, err := s.flights.RemoveFront(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, f)
}

func (s *Server) handleFlightRemoveBack(w http.ResponseWriter, r *http.Request) {
	f, err := s.flights.RemoveBack(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, f)
}

func (s *Server) handleFlightRemoveAt(w http.ResponseWriter, r *http.Request) {
	pos, err := strconv.Atoi(r.PathValue("position"))
	if err != nil {
		writeError(w, 400, "INVALID", "position must be an integer")
		return
	}
	f, err := s.flights.RemoveAt(r.Context(), pos)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, f)
}

func (s *Server) handleFlightReorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Criterion string `json:"criterion"`
	}
	if !decode(w, r, &req) {
		return
	}
	flights, err := s.flights.ReorderBy(r.Context(), req.Criterion)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, flights)
}

func (s *Server) handleFlightVerify(w http.ResponseWriter, r *http.Request) {
	rep, err := s.flights.Verify(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, rep)
}

func (s *Server) handleFlightGet(w http.ResponseWriter, r *http.Request) {
	f, err := s.flights.Flight(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, f)
}
