// internal/match/engine.go
package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/cache"
	"github.com/jason-s-yu/quizduel/internal/events"
	"github.com/jason-s-yu/quizduel/internal/models"
	"github.com/jason-s-yu/quizduel/internal/questions"
	"github.com/jason-s-yu/quizduel/internal/timer"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// ResultRecorder is the durable result sink, called once per player at game end.
type ResultRecorder interface {
	RecordResult(ctx context.Context, identity string, pointsDelta int, isWin bool) error
}

// ActionLogger receives the per-session action history. It must not block.
type ActionLogger interface {
	LogAction(rec cache.MatchActionRecord)
}

// Options wires an Engine. Questions is required; everything else has a default.
type Options struct {
	Rules     Rules
	Store     *Store
	Timers    *timer.Scheduler
	Questions questions.Provider
	Results   ResultRecorder
	Actions   ActionLogger
	Events    events.Publisher
	Logger    logrus.FieldLogger

	// ProviderTimeout bounds question provider calls made from timer callbacks.
	ProviderTimeout time.Duration
	// ResultTimeout bounds each RecordResult call.
	ResultTimeout time.Duration
}

// Engine is the session state machine. Every mutation of a Session, whether
// from a player action or a timer callback, happens under mu.
type Engine struct {
	mu        sync.Mutex
	rules     Rules
	store     *Store
	timers    *timer.Scheduler
	clock     clockwork.Clock
	questions questions.Provider
	results   ResultRecorder
	actions   ActionLogger
	events    events.Publisher
	logger    logrus.FieldLogger

	providerTimeout time.Duration
	resultTimeout   time.Duration

	closed bool
	bg     sync.WaitGroup
}

// NewEngine validates the rules and builds an engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Questions == nil {
		return nil, errors.New("match engine requires a question provider")
	}
	if err := opts.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid match rules: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Store == nil {
		opts.Store = NewStore()
	}
	if opts.Timers == nil {
		opts.Timers = timer.NewScheduler(nil, opts.Logger)
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 5 * time.Second
	}
	if opts.ResultTimeout <= 0 {
		opts.ResultTimeout = 10 * time.Second
	}

	return &Engine{
		rules:           opts.Rules,
		store:           opts.Store,
		timers:          opts.Timers,
		clock:           opts.Timers.Clock(),
		questions:       opts.Questions,
		results:         opts.Results,
		actions:         opts.Actions,
		events:          opts.Events,
		logger:          opts.Logger,
		providerTimeout: opts.ProviderTimeout,
		resultTimeout:   opts.ResultTimeout,
	}, nil
}

// Rules returns the engine's match settings.
func (e *Engine) Rules() Rules {
	return e.rules
}

// ActiveSession returns the session a player is in, ignoring finished ones.
func (e *Engine) ActiveSession(playerID uuid.UUID) (uuid.UUID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.store.Lookup(playerID)
	if !ok || sess.closed() {
		return uuid.Nil, false
	}
	return sess.ID, true
}

// CreateSession pairs two players into a new session in subject-selection.
// Players still attached to a finished session are detached from it first.
func (e *Engine) CreateSession(a, b models.Player) (uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return uuid.Nil, ErrUnavailable
	}
	if a.ID == uuid.Nil || b.ID == uuid.Nil || a.ID == b.ID {
		return uuid.Nil, newError(KindInvalidInput, "a session needs two distinct players")
	}
	for _, p := range []models.Player{a, b} {
		prev, ok := e.store.Lookup(p.ID)
		if !ok {
			continue
		}
		if !prev.closed() {
			return uuid.Nil, newError(KindInvalidState, "player %s is already in session %s", p.ID, prev.ID)
		}
		e.detachFinished(prev, p.ID)
	}

	sess := newSession(a, b, e.rules.MaxRounds, e.clock.Now())
	if err := e.store.Add(sess); err != nil {
		return uuid.Nil, newError(KindInvalidState, "%v", err)
	}
	e.startPickTimer(sess)

	e.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"player_a":   a.ID,
		"player_b":   b.ID,
	}).Info("session created")

	e.publish(sess, events.Event{
		Type: events.TypeSessionCreated,
		Payload: map[string]interface{}{
			"players": sess.Players,
			"picker":  sess.Picker().ID,
		},
	})
	e.logAction(sess, uuid.Nil, "session_created", map[string]interface{}{
		"players": []uuid.UUID{a.ID, b.ID},
	})
	return sess.ID, nil
}

// Poll returns the caller-scoped snapshot of the player's session.
func (e *Engine) Poll(playerID uuid.UUID) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, idx, err := e.sessionFor(playerID)
	if err != nil {
		return Snapshot{}, err
	}
	return e.snapshot(sess, idx), nil
}

// ListSubjects passes through to the question provider.
func (e *Engine) ListSubjects(ctx context.Context) ([]string, error) {
	subjects, err := e.questions.ListSubjects(ctx)
	if err != nil {
		return nil, newError(KindUnavailable, "failed to list subjects: %v", err)
	}
	return subjects, nil
}

// PickSubject lets the round's picker choose the subject. The question draw runs
// outside the engine lock; the session is re-validated before the round starts.
func (e *Engine) PickSubject(ctx context.Context, playerID uuid.UUID, subject string) error {
	e.mu.Lock()
	sess, idx, err := e.sessionFor(playerID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if sess.abandoned || sess.State != StateSubjectSelection {
		e.mu.Unlock()
		return newError(KindInvalidState, "session is %s, not %s", sess.State, StateSubjectSelection)
	}
	if idx != sess.PickerIndex {
		e.mu.Unlock()
		return newError(KindForbidden, "player %s is not the picker for round %d", playerID, sess.CurrentRound)
	}
	if subject == "" {
		e.mu.Unlock()
		return newError(KindInvalidInput, "subject must not be empty")
	}
	sessionID, round := sess.ID, sess.CurrentRound
	e.mu.Unlock()

	qs, err := e.questions.DrawQuestions(ctx, subject, e.rules.QuestionsPerRound)
	if err != nil {
		if errors.Is(err, questions.ErrUnknownSubject) {
			return newError(KindInvalidInput, "unknown subject %q", subject)
		}
		return newError(KindUnavailable, "failed to draw questions: %v", err)
	}
	if len(qs) == 0 {
		return newError(KindUnavailable, "no questions available for %q", subject)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.store.Get(sessionID)
	if !ok || sess.PlayerIndex(playerID) < 0 {
		return ErrNotFound
	}
	if sess.abandoned || sess.State != StateSubjectSelection || sess.CurrentRound != round {
		return newError(KindInvalidState, "round %d subject was already chosen", round)
	}
	e.timers.Cancel(timer.Key{Session: sess.ID, Purpose: timer.PurposeSubjectPick})
	e.beginRound(sess, subject, qs, playerID)
	return nil
}

// SubmitAnswer evaluates a player's answer to their current question.
func (e *Engine) SubmitAnswer(playerID, questionID uuid.UUID, answerIndex int) (AnswerResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, idx, err := e.sessionFor(playerID)
	if err != nil {
		return AnswerResult{}, err
	}
	return e.evaluate(sess, idx, questionID, Answer{Index: answerIndex})
}

// MarkReady records that a player wants the next round. Repeat calls are no-ops.
func (e *Engine) MarkReady(playerID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, _, err := e.sessionFor(playerID)
	if err != nil {
		return err
	}
	if sess.abandoned || sess.State != StateRoundOver {
		return newError(KindInvalidState, "session is %s, not %s", sess.State, StateRoundOver)
	}
	if sess.Ready[playerID] {
		return nil
	}
	sess.Ready[playerID] = true
	e.publish(sess, events.Event{Type: events.TypePlayerReady, From: playerID.String(), Round: sess.CurrentRound})
	e.logAction(sess, playerID, "ready", nil)

	if sess.AllReady() {
		e.timers.Cancel(timer.Key{Session: sess.ID, Purpose: timer.PurposeRoundOver})
		e.advance(sess)
	}
	return nil
}

// Leave detaches a player. A running match is abandoned: its timers stop, the
// remaining player is credited the win when ForfeitOnLeave is set, and the
// session stays pollable by them until retention ends.
func (e *Engine) Leave(playerID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, idx, err := e.sessionFor(playerID)
	if err != nil {
		return err
	}
	log := e.logger.WithFields(logrus.Fields{"session_id": sess.ID, "player_id": playerID})

	if sess.closed() {
		e.detachFinished(sess, playerID)
		log.Debug("player left closed session")
		return nil
	}

	e.timers.CancelSession(sess.ID)
	sess.abandoned = true
	sess.EndedAt = e.clock.Now()
	sess.PickStartedAt = time.Time{}
	sess.QuestionStartedAt = [2]time.Time{}
	sess.RoundOverStartedAt = time.Time{}
	e.logAction(sess, playerID, "leave", map[string]interface{}{"state": sess.State})

	stay := sess.Players[Opponent(idx)]
	forfeit := e.rules.ForfeitOnLeave
	if forfeit {
		winner := stay.ID
		sess.Outcome = &Outcome{Winner: &winner, Scores: sess.Scores}
		e.recordResult(sess, Opponent(idx), true)
		e.recordResult(sess, idx, false)
	}
	e.events.Publish(events.Event{
		Type:       events.TypeOpponentLeft,
		SessionID:  sess.ID,
		Recipients: []uuid.UUID{stay.ID},
		Round:      sess.CurrentRound,
		From:       playerID.String(),
		State:      string(sess.State),
		Payload:    map[string]interface{}{"forfeit": forfeit, "scores": sess.Scores},
		At:         e.clock.Now(),
	})
	log.WithField("forfeit", forfeit).Info("player left, session abandoned")

	e.detachFinished(sess, playerID)
	e.retain(sess)
	return nil
}

// Close cancels every session timer and drops all sessions. Entry points fail afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, id := range e.store.IDs() {
		e.timers.CancelSession(id)
	}
	e.store.Clear()
	e.mu.Unlock()

	e.bg.Wait()
}

// sessionFor resolves player -> session under e.mu.
func (e *Engine) sessionFor(playerID uuid.UUID) (*Session, int, error) {
	if e.closed {
		return nil, -1, ErrUnavailable
	}
	sess, ok := e.store.Lookup(playerID)
	if !ok {
		return nil, -1, ErrNotFound
	}
	idx := sess.PlayerIndex(playerID)
	if idx < 0 {
		return nil, -1, ErrNotFound
	}
	return sess, idx, nil
}

func (e *Engine) transition(s *Session, to State) {
	from := s.State
	if !CanTransition(from, to) {
		// unreachable unless a caller skipped its state check
		e.logger.WithFields(logrus.Fields{
			"session_id": s.ID,
			"from":       from,
			"to":         to,
		}).Error("refusing illegal state transition")
		return
	}
	s.State = to
	e.publish(s, events.Event{Type: events.TypeStateChanged, From: string(from), Round: s.CurrentRound})
}

// beginRound moves subject-selection -> playing with a freshly drawn question set.
func (e *Engine) beginRound(s *Session, subject string, qs []models.Question, pickedBy uuid.UUID) {
	s.Subject = subject
	s.Questions = qs
	s.Progress = [2]int{}
	s.Answers = make(map[answerKey]Answer)
	s.Finished = make(map[uuid.UUID]bool)
	s.PickStartedAt = time.Time{}
	e.transition(s, StatePlaying)

	for idx := range s.Players {
		e.startQuestionTimer(s, idx)
	}

	e.publish(s, events.Event{
		Type:  events.TypeSubjectPicked,
		Round: s.CurrentRound,
		Payload: map[string]interface{}{
			"subject":   subject,
			"questions": len(qs),
			"auto":      pickedBy == uuid.Nil,
		},
	})
	e.logAction(s, pickedBy, "pick_subject", map[string]interface{}{
		"subject": subject,
		"auto":    pickedBy == uuid.Nil,
	})
	e.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"round":      s.CurrentRound,
		"subject":    subject,
	}).Info("round started")
}

// endRound moves playing -> round-over once both players finished.
func (e *Engine) endRound(s *Session) {
	for idx, p := range s.Players {
		e.timers.Cancel(timer.Key{Session: s.ID, Player: p.ID, Purpose: timer.PurposeQuestion})
		s.QuestionStartedAt[idx] = time.Time{}
	}
	s.Ready = make(map[uuid.UUID]bool)
	e.transition(s, StateRoundOver)

	ticket := e.timers.Start(timer.Key{Session: s.ID, Purpose: timer.PurposeRoundOver}, e.rules.RoundOverTimeout, e.onRoundOverTimeout)
	s.RoundOverStartedAt = ticket.StartedAt
}

// advance leaves round-over, either into the next round or to game-over.
func (e *Engine) advance(s *Session) {
	if s.CurrentRound >= s.MaxRounds {
		e.finishGame(s)
		return
	}
	s.CurrentRound++
	s.PickerIndex = (s.PickerIndex + 1) % len(s.Players)
	s.clearRoundState()
	e.transition(s, StateSubjectSelection)
	e.startPickTimer(s)
}

func (e *Engine) finishGame(s *Session) {
	e.transition(s, StateGameOver)
	e.timers.CancelSession(s.ID)
	s.RoundOverStartedAt = time.Time{}
	s.EndedAt = e.clock.Now()

	out := &Outcome{Scores: s.Scores}
	switch {
	case s.Scores[0] > s.Scores[1]:
		w := s.Players[0].ID
		out.Winner = &w
	case s.Scores[1] > s.Scores[0]:
		w := s.Players[1].ID
		out.Winner = &w
	default:
		out.Draw = true
	}
	s.Outcome = out

	for idx, p := range s.Players {
		e.recordResult(s, idx, out.Winner != nil && *out.Winner == p.ID)
	}

	payload := map[string]interface{}{"scores": out.Scores, "draw": out.Draw}
	if out.Winner != nil {
		payload["winner"] = *out.Winner
	}
	e.publish(s, events.Event{Type: events.TypeGameOver, Round: s.CurrentRound, Payload: payload})
	e.logAction(s, uuid.Nil, "game_over", payload)
	e.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"scores":     out.Scores,
		"draw":       out.Draw,
	}).Info("game over")

	e.retain(s)
}

// retain keeps a closed session pollable for ResultRetention, or drops it now.
func (e *Engine) retain(s *Session) {
	if e.rules.ResultRetention > 0 {
		e.timers.Start(timer.Key{Session: s.ID, Purpose: timer.PurposeRetention}, e.rules.ResultRetention, e.onRetentionExpired)
		return
	}
	e.closeSession(s)
}

// detachFinished unindexes one player from a closed session and drops the
// session once nobody is left on it.
func (e *Engine) detachFinished(s *Session, playerID uuid.UUID) {
	s.left[playerID] = true
	e.store.Unindex(playerID)
	for _, p := range s.Players {
		if !s.left[p.ID] {
			return
		}
	}
	e.timers.CancelSession(s.ID)
	e.store.Remove(s.ID)
}

func (e *Engine) closeSession(s *Session) {
	e.timers.CancelSession(s.ID)
	e.store.Remove(s.ID)
	e.publish(s, events.Event{Type: events.TypeSessionClosed})
}

func (e *Engine) startPickTimer(s *Session) {
	ticket := e.timers.Start(timer.Key{Session: s.ID, Purpose: timer.PurposeSubjectPick}, e.rules.PickTimeout, e.onPickTimeout)
	s.PickStartedAt = ticket.StartedAt
}

func (e *Engine) startQuestionTimer(s *Session, idx int) {
	key := timer.Key{Session: s.ID, Player: s.Players[idx].ID, Purpose: timer.PurposeQuestion}
	ticket := e.timers.Start(key, e.rules.QuestionTimeout, e.onQuestionTimeout)
	s.QuestionStartedAt[idx] = ticket.StartedAt
}

// onPickTimeout auto-selects a random subject. Like PickSubject it draws
// questions without holding the lock and re-validates afterwards.
func (e *Engine) onPickTimeout(f timer.Fired) {
	e.mu.Lock()
	if !e.timers.Claim(f) {
		e.mu.Unlock()
		return
	}
	sess, ok := e.store.Get(f.Key.Session)
	if !ok || sess.abandoned || sess.State != StateSubjectSelection {
		e.mu.Unlock()
		return
	}
	sessionID, round := sess.ID, sess.CurrentRound
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.providerTimeout)
	subject, qs, err := e.drawRandom(ctx)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok = e.store.Get(sessionID)
	if !ok || sess.abandoned || sess.State != StateSubjectSelection || sess.CurrentRound != round {
		e.logger.WithField("session_id", sessionID).Debug("pick timer outcome discarded, session moved on")
		return
	}
	if err != nil {
		e.logger.WithError(err).WithField("session_id", sessionID).Warn("auto subject pick failed, restarting pick timer")
		e.startPickTimer(sess)
		return
	}
	e.beginRound(sess, subject, qs, uuid.Nil)
}

func (e *Engine) drawRandom(ctx context.Context) (string, []models.Question, error) {
	subjects, err := e.questions.ListSubjects(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	if len(subjects) == 0 {
		return "", nil, errors.New("question provider has no subjects")
	}
	subject := subjects[rand.IntN(len(subjects))]
	qs, err := e.questions.DrawQuestions(ctx, subject, e.rules.QuestionsPerRound)
	if err != nil {
		return "", nil, fmt.Errorf("failed to draw questions for %q: %w", subject, err)
	}
	if len(qs) == 0 {
		return "", nil, fmt.Errorf("no questions for %q", subject)
	}
	return subject, qs, nil
}

// onQuestionTimeout evaluates the player's current question as a timeout.
func (e *Engine) onQuestionTimeout(f timer.Fired) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.timers.Claim(f) {
		return
	}
	sess, ok := e.store.Get(f.Key.Session)
	if !ok {
		return
	}
	idx := sess.PlayerIndex(f.Key.Player)
	if idx < 0 {
		return
	}
	q, ok := sess.CurrentQuestion(idx)
	if !ok {
		return
	}
	if _, err := e.evaluate(sess, idx, q.ID, TimeoutAnswer); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": sess.ID,
			"player_id":  f.Key.Player,
		}).Debug("question timeout ignored")
	}
}

// onRoundOverTimeout has the same effect as both players readying up.
func (e *Engine) onRoundOverTimeout(f timer.Fired) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.timers.Claim(f) {
		return
	}
	sess, ok := e.store.Get(f.Key.Session)
	if !ok || sess.abandoned || sess.State != StateRoundOver {
		return
	}
	e.advance(sess)
}

func (e *Engine) onRetentionExpired(f timer.Fired) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.timers.Claim(f) {
		return
	}
	sess, ok := e.store.Get(f.Key.Session)
	if !ok || !sess.closed() {
		return
	}
	e.closeSession(sess)
	e.logger.WithField("session_id", sess.ID).Debug("finished session expired")
}

// recordResult reports one player's final result without blocking the caller.
func (e *Engine) recordResult(s *Session, idx int, isWin bool) {
	if e.results == nil {
		return
	}
	player := s.Players[idx]
	identity, points := player.Identity(), s.Scores[idx]
	log := e.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"identity":   identity,
		"points":     points,
		"win":        isWin,
	})

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.resultTimeout)
		defer cancel()
		if err := e.results.RecordResult(ctx, identity, points, isWin); err != nil {
			log.WithError(err).Error("failed to record result")
			return
		}
		log.Debug("result recorded")
	}()
}

// publish stamps session fields onto ev and sends it to both players.
func (e *Engine) publish(s *Session, ev events.Event) {
	ev.SessionID = s.ID
	if ev.Recipients == nil {
		ev.Recipients = []uuid.UUID{s.Players[0].ID, s.Players[1].ID}
	}
	if ev.State == "" {
		ev.State = string(s.State)
	}
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	e.events.Publish(ev)
}

func (e *Engine) logAction(s *Session, actor uuid.UUID, actionType string, payload map[string]interface{}) {
	if e.actions == nil {
		return
	}
	s.actions++
	e.actions.LogAction(cache.MatchActionRecord{
		SessionID:     s.ID,
		ActionIndex:   s.actions,
		ActorID:       actor,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     e.clock.Now().UnixMilli(),
	})
}
