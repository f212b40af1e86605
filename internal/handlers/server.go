// internal/handlers/server.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jason-s-yu/quizduel/internal/auth"
	"github.com/jason-s-yu/quizduel/internal/events"
	"github.com/jason-s-yu/quizduel/internal/match"
	"github.com/jason-s-yu/quizduel/internal/matchmaking"
	"github.com/jason-s-yu/quizduel/internal/middleware"
	"github.com/jason-s-yu/quizduel/internal/models"
	"github.com/sirupsen/logrus"
)

var errUnauthenticated = errors.New("missing or invalid auth token")

// Server is the thin request layer over the match engine and queue. It holds no game rules.
type Server struct {
	engine *match.Engine
	queue  *matchmaking.Queue
	hub    *events.Hub
	issuer *auth.Issuer
	logger logrus.FieldLogger

	// OriginPatterns is passed to websocket.Accept.
	OriginPatterns []string
}

// NewServer wires the handlers.
func NewServer(engine *match.Engine, queue *matchmaking.Queue, hub *events.Hub, issuer *auth.Issuer, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		engine:         engine,
		queue:          queue,
		hub:            hub,
		issuer:         issuer,
		logger:         logger,
		OriginPatterns: []string{"*"},
	}
}

// Routes returns the request multiplexer with request logging applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /queue/join", s.handleJoin)
	mux.HandleFunc("GET /session", s.handlePoll)
	mux.HandleFunc("POST /session/subject", s.handlePickSubject)
	mux.HandleFunc("POST /session/answer", s.handleAnswer)
	mux.HandleFunc("POST /session/ready", s.handleReady)
	mux.HandleFunc("POST /session/leave", s.handleLeave)
	mux.HandleFunc("GET /session/ws", s.handleWS)
	mux.HandleFunc("GET /subjects", s.handleSubjects)
	mux.HandleFunc("GET /health", s.handleHealth)
	return middleware.LogMiddleware(s.logger)(mux)
}

// authenticate reads the guest token from the auth cookie or a bearer header.
func (s *Server) authenticate(r *http.Request) (models.Player, error) {
	token := ""
	if c, err := r.Cookie(auth.CookieName); err == nil {
		token = c.Value
	}
	if h := r.Header.Get("Authorization"); token == "" && strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		return models.Player{}, errUnauthenticated
	}
	p, err := s.issuer.Authenticate(token)
	if err != nil {
		return models.Player{}, errUnauthenticated
	}
	return p, nil
}

// requirePlayer authenticates or writes a 401.
func (s *Server) requirePlayer(w http.ResponseWriter, r *http.Request) (models.Player, bool) {
	p, err := s.authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Kind: "unauthenticated", Message: err.Error()})
		return models.Player{}, false
	}
	return p, true
}

func (s *Server) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps a rejection kind to its HTTP status.
func statusFor(kind match.Kind) int {
	switch kind {
	case match.KindNotFound:
		return http.StatusNotFound
	case match.KindInvalidState, match.KindAlreadyActed, match.KindStaleReference:
		return http.StatusConflict
	case match.KindForbidden:
		return http.StatusForbidden
	case match.KindInvalidInput:
		return http.StatusBadRequest
	case match.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rej *match.Error
	if errors.As(err, &rej) {
		writeJSON(w, statusFor(rej.Kind), errorBody{Kind: string(rej.Kind), Message: rej.Message})
		return
	}
	s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Kind: "internal", Message: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON request body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		return &match.Error{Kind: match.KindInvalidInput, Message: "invalid json body: " + err.Error()}
	}
	return nil
}
