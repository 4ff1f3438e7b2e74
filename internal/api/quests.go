package api

import (
	"net/http"
)

func (s *Server) handleCharacterCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	c, err := s.quests.CreateCharacter(r.Context(), req.Name)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 201, c)
}

func (s *Server) handleCharacterGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.quests.Character(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, c)
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	quests, err := s.quests.List(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, quests)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	res, err := s.quests.Enqueue(r.Context(), r.PathValue("id"), r.PathValue("questID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 201, res)
}

func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	res, err := s.quests.DequeueFront(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Server) handleQuestCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Experience  int    `json:"experience"`
	}
	if !decode(w, r, &req) {
		return
	}
	q, err := s.quests.CreateQuest(r.Context(), req.Name, req.Description, req.Experience)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 201, q)
}

func (s *Server) handleQuestList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := queryInt(r, "limit", 50)
	quests, err := s.quests.Quests(r.Context(), status, limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, quests)
}

func (s *Server) handleQuestSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, 400, "INVALID", "q is required")
		return
	}
	quests, err := s.quests.SearchQuests(r.Context(), q, queryInt(r, "limit", 20))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, quests)
}

func (s *Server) handleQuestGet(w http.ResponseWriter, r *http.Request) {
	q, err := s.quests.Quest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, 200, q)
}
