// internal/handlers/session.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/match"
	"github.com/jason-s-yu/quizduel/internal/matchmaking"
	"github.com/jason-s-yu/quizduel/internal/models"
)

type joinRequest struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	ExternalID  string `json:"externalId"`
}

type joinResponse struct {
	matchmaking.Ticket
	PlayerID uuid.UUID `json:"playerId"`
	Token    string    `json:"token,omitempty"`
}

// handleJoin queues the caller, issuing a guest token first if they have none.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	player, err := s.authenticate(r)
	token := ""
	if err != nil {
		player = models.Player{
			ID:          uuid.New(),
			DisplayName: strings.TrimSpace(req.DisplayName),
			AvatarURL:   req.AvatarURL,
			ExternalID:  req.ExternalID,
		}
		if player.DisplayName == "" {
			player.DisplayName = "Guest"
		}
		token, err = s.issuer.Issue(player)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.setAuthCookie(w, token)
	}

	ticket, err := s.queue.Enqueue(r.Context(), player)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{Ticket: ticket, PlayerID: player.ID, Token: token})
}

type queuedResponse struct {
	Queued   bool `json:"queued"`
	Position int  `json:"position"`
}

// handlePoll returns the caller's snapshot, or their queue position while waiting.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	player, ok := s.requirePlayer(w, r)
	if !ok {
		return
	}
	snap, err := s.engine.Poll(player.ID)
	if errors.Is(err, match.ErrNotFound) {
		if pos, queued := s.queue.Position(player.ID); queued {
			writeJSON(w, http.StatusOK, queuedResponse{Queued: true, Position: pos})
			return
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type pickRequest struct {
	Subject string `json:"subject"`
}

func (s *Server) handlePickSubject(w http.ResponseWriter, r *http.Request) {
	player, ok := s.requirePlayer(w, r)
	if !ok {
		return
	}
	var req pickRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.PickSubject(r.Context(), player.ID, strings.TrimSpace(req.Subject)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type answerRequest struct {
	QuestionID  uuid.UUID `json:"questionId"`
	AnswerIndex *int      `json:"answerIndex"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	player, ok := s.requirePlayer(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.QuestionID == uuid.Nil || req.AnswerIndex == nil {
		s.writeError(w, r, &match.Error{Kind: match.KindInvalidInput, Message: "questionId and answerIndex are required"})
		return
	}
	res, err := s.engine.SubmitAnswer(player.ID, req.QuestionID, *req.AnswerIndex)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	player, ok := s.requirePlayer(w, r)
	if !ok {
		return
	}
	if err := s.engine.MarkReady(player.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLeave drops the caller from the queue and from any session.
func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	player, ok := s.requirePlayer(w, r)
	if !ok {
		return
	}
	dequeued := s.queue.Remove(player.ID)
	err := s.engine.Leave(player.ID)
	if err != nil && !(dequeued && errors.Is(err, match.ErrNotFound)) {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.engine.ListSubjects(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subjects": subjects})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"queued": s.queue.Len(),
	})
}
