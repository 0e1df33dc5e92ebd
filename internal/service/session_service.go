package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/psds-microservice/watchparty-service/internal/config"
	"github.com/psds-microservice/watchparty-service/internal/errs"
	"github.com/psds-microservice/watchparty-service/internal/model"
	"github.com/psds-microservice/watchparty-service/internal/store"
	"go.uber.org/zap"
)

// SessionServicer — интерфейс координатора для транспортов (D: зависимость от абстракции).
type SessionServicer interface {
	Create(ctx context.Context, caller, movieTitle string) (*model.Session, error)
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	List(ctx context.Context, filter model.ListFilter) ([]model.Summary, error)
	Join(ctx context.Context, caller, sessionID string) (*model.Session, error)
	Leave(ctx context.Context, caller, sessionID string) error
	PostChat(ctx context.Context, caller, sessionID, message string) (*model.Session, error)
	PostReaction(ctx context.Context, caller, sessionID, reactionType string) (*model.Session, error)
	End(ctx context.Context, caller, sessionID string) error
}

// EventPublisher receives an event after every successful mutation. It must not block.
type EventPublisher interface {
	Publish(ev model.PartyEvent)
}

const maxReactionLen = 64

// SessionService coordinates watch party actions: it validates the caller
// and the session state, then issues exactly one atomic store mutation whose
// precondition re-checks the lifecycle rules under the session lock.
type SessionService struct {
	store  store.Store
	cfg    *config.Config
	events EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

// NewSessionService creates a session service. events may be nil.
func NewSessionService(st store.Store, cfg *config.Config, events EventPublisher, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionService{
		store:  st,
		cfg:    cfg,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create starts a new party hosted by caller; the host is its first participant.
func (s *SessionService) Create(ctx context.Context, caller, movieTitle string) (*model.Session, error) {
	if err := requireCaller(caller, ""); err != nil {
		return nil, err
	}
	if strings.TrimSpace(movieTitle) == "" {
		return nil, errs.Invalid("", "movie title is empty")
	}
	if utf8.RuneCountInString(movieTitle) > s.cfg.PartyMaxTitleLen {
		return nil, errs.Invalid("", "movie title is too long")
	}
	sess, err := s.store.Allocate(ctx, caller, movieTitle, s.now())
	if err != nil {
		return nil, err
	}
	s.log.Info("party created",
		zap.String("session_id", sess.ID),
		zap.String("host", caller),
		zap.String("movie_title", movieTitle))
	return sess, nil
}

// Get returns the current snapshot of a party.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, errs.New(errs.ErrSessionNotFound, sessionID)
	}
	return s.store.Read(ctx, sessionID)
}

// List returns party summaries for lobby views.
func (s *SessionService) List(ctx context.Context, filter model.ListFilter) ([]model.Summary, error) {
	if filter.Limit < 0 {
		return nil, errs.Invalid("", "limit must not be negative")
	}
	return s.store.List(ctx, filter)
}

// Join adds caller to the roster; joining twice is a no-op.
func (s *SessionService) Join(ctx context.Context, caller, sessionID string) (*model.Session, error) {
	if err := requireCaller(caller, sessionID); err != nil {
		return nil, err
	}
	sess, changed, err := s.store.AppendParticipant(ctx, sessionID, caller, s.now(), requireActive)
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Debug("participant joined", zap.String("session_id", sessionID), zap.String("user_id", caller))
		s.publish(model.PartyEvent{Kind: model.EventParticipantJoined, SessionID: sessionID, User: caller})
	}
	return sess, nil
}

// Leave removes caller from the roster. Leaving when not a participant is a
// no-op success, also on an ended party; a participant cannot leave an ended party.
func (s *SessionService) Leave(ctx context.Context, caller, sessionID string) error {
	if err := requireCaller(caller, sessionID); err != nil {
		return err
	}
	_, changed, err := s.store.RemoveParticipant(ctx, sessionID, caller, func(st store.State) error {
		if st.Member && !st.IsActive {
			return errs.New(errs.ErrSessionInactive, st.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.log.Debug("participant left", zap.String("session_id", sessionID), zap.String("user_id", caller))
		s.publish(model.PartyEvent{Kind: model.EventParticipantLeft, SessionID: sessionID, User: caller})
	}
	return nil
}

// PostChat appends a chat entry. Membership is not required and not granted.
func (s *SessionService) PostChat(ctx context.Context, caller, sessionID, message string) (*model.Session, error) {
	if err := requireCaller(caller, sessionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, errs.Invalid(sessionID, "message is empty")
	}
	if utf8.RuneCountInString(message) > s.cfg.PartyMaxMessageLen {
		return nil, errs.Invalid(sessionID, "message is too long")
	}
	entry := model.ChatMessage{Sender: caller, Message: message, Timestamp: s.now()}
	sess, err := s.store.AppendChat(ctx, sessionID, entry, requireActive)
	if err != nil {
		return nil, err
	}
	s.publish(model.PartyEvent{
		Kind:      model.EventChatMessage,
		SessionID: sessionID,
		User:      caller,
		Position:  len(sess.ChatHistory) - 1,
		Chat:      &entry,
	})
	return sess, nil
}

// PostReaction appends a reaction entry; repeated reactions are all kept.
func (s *SessionService) PostReaction(ctx context.Context, caller, sessionID, reactionType string) (*model.Session, error) {
	if err := requireCaller(caller, sessionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reactionType) == "" {
		return nil, errs.Invalid(sessionID, "reaction type is empty")
	}
	if utf8.RuneCountInString(reactionType) > maxReactionLen {
		return nil, errs.Invalid(sessionID, "reaction type is too long")
	}
	entry := model.Reaction{User: caller, ReactionType: reactionType, Timestamp: s.now()}
	sess, err := s.store.AppendReaction(ctx, sessionID, entry, requireActive)
	if err != nil {
		return nil, err
	}
	s.publish(model.PartyEvent{
		Kind:      model.EventReaction,
		SessionID: sessionID,
		User:      caller,
		Position:  len(sess.Reactions) - 1,
		Reaction:  &entry,
	})
	return sess, nil
}

// End closes the party for good. Only the host may end it; ending twice is a no-op.
func (s *SessionService) End(ctx context.Context, caller, sessionID string) error {
	if err := requireCaller(caller, sessionID); err != nil {
		return err
	}
	sess, changed, err := s.store.Deactivate(ctx, sessionID, s.now(), func(st store.State) error {
		if st.Host != caller {
			return errs.New(errs.ErrNotHost, st.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.log.Info("party ended",
			zap.String("session_id", sessionID),
			zap.Int("participants", len(sess.Participants)),
			zap.Int("chat_messages", len(sess.ChatHistory)),
			zap.Int("reactions", len(sess.Reactions)))
		s.publish(model.PartyEvent{Kind: model.EventPartyEnded, SessionID: sessionID, User: caller, Session: sess})
	}
	return nil
}

func (s *SessionService) publish(ev model.PartyEvent) {
	if s.events == nil {
		return
	}
	ev.At = s.now()
	s.events.Publish(ev)
}

func requireActive(st store.State) error {
	if !st.IsActive {
		return errs.New(errs.ErrSessionInactive, st.ID)
	}
	return nil
}

func requireCaller(caller, sessionID string) error {
	if strings.TrimSpace(caller) == "" {
		return errs.Invalid(sessionID, "caller identity is empty")
	}
	return nil
}
