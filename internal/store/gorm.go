package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/watchparty-service/internal/errs"
	"github.com/psds-microservice/watchparty-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps sessions in a SQL database. Every mutation runs in its own
// transaction with the party row locked FOR UPDATE, so mutations of one
// session serialize while different sessions only contend on distinct rows.
// Child rows take their position from the party's seq counter.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store over an open GORM connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates the tables for drivers without SQL migrations (SQLite).
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.WatchParty{},
		&model.PartyParticipant{},
		&model.PartyChatMessage{},
		&model.PartyReaction{},
	)
}

func (s *GormStore) Allocate(ctx context.Context, host, movieTitle string, startTime time.Time) (*model.Session, error) {
	ent := &model.WatchParty{
		ID:         uuid.New().String(),
		Host:       host,
		MovieTitle: movieTitle,
		StartTime:  startTime,
		IsActive:   true,
		Seq:        1,
		Participants: []model.PartyParticipant{
			{UserID: host, Seq: 1, JoinedAt: startTime},
		},
	}
	var sess *model.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ent).Error; err != nil {
			return err
		}
		var err error
		sess, err = loadSession(tx, ent.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("allocate session: %w", err)
	}
	return sess, nil
}

// Read loads the session under a shared row lock so the three logs come from
// one point in time.
func (s *GormStore) Read(ctx context.Context, id string) (*model.Session, error) {
	var sess *model.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockParty(tx, id, "SHARE"); err != nil {
			return err
		}
		var err error
		sess, err = loadSession(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// mutate runs fn inside a transaction holding the party row lock, then
// returns the snapshot as seen by that same transaction.
func (s *GormStore) mutate(ctx context.Context, id string, fn func(tx *gorm.DB, p *model.WatchParty) error) (*model.Session, error) {
	var sess *model.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockParty(tx, id, "UPDATE")
		if err != nil {
			return err
		}
		if err := fn(tx, p); err != nil {
			return err
		}
		sess, err = loadSession(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *GormStore) AppendParticipant(ctx context.Context, id, user string, at time.Time, pre Precondition) (*model.Session, bool, error) {
	changed := false
	sess, err := s.mutate(ctx, id, func(tx *gorm.DB, p *model.WatchParty) error {
		member, err := isMember(tx, id, user)
		if err != nil {
			return err
		}
		if err := check(pre, stateOf(p, member)); err != nil {
			return err
		}
		if member {
			return nil
		}
		seq, err := nextSeq(tx, p)
		if err != nil {
			return err
		}
		changed = true
		return tx.Create(&model.PartyParticipant{PartyID: id, UserID: user, Seq: seq, JoinedAt: at}).Error
	})
	return sess, changed, err
}

func (s *GormStore) RemoveParticipant(ctx context.Context, id, user string, pre Precondition) (*model.Session, bool, error) {
	changed := false
	sess, err := s.mutate(ctx, id, func(tx *gorm.DB, p *model.WatchParty) error {
		member, err := isMember(tx, id, user)
		if err != nil {
			return err
		}
		if err := check(pre, stateOf(p, member)); err != nil {
			return err
		}
		if !member {
			return nil
		}
		changed = true
		return tx.Where("party_id = ? AND user_id = ?", id, user).Delete(&model.PartyParticipant{}).Error
	})
	return sess, changed, err
}

func (s *GormStore) AppendChat(ctx context.Context, id string, msg model.ChatMessage, pre Precondition) (*model.Session, error) {
	return s.mutate(ctx, id, func(tx *gorm.DB, p *model.WatchParty) error {
		member, err := isMember(tx, id, msg.Sender)
		if err != nil {
			return err
		}
		if err := check(pre, stateOf(p, member)); err != nil {
			return err
		}
		seq, err := nextSeq(tx, p)
		if err != nil {
			return err
		}
		return tx.Create(&model.PartyChatMessage{
			PartyID: id,
			Seq:     seq,
			Sender:  msg.Sender,
			Message: msg.Message,
			SentAt:  msg.Timestamp,
		}).Error
	})
}

func (s *GormStore) AppendReaction(ctx context.Context, id string, r model.Reaction, pre Precondition) (*model.Session, error) {
	return s.mutate(ctx, id, func(tx *gorm.DB, p *model.WatchParty) error {
		member, err := isMember(tx, id, r.User)
		if err != nil {
			return err
		}
		if err := check(pre, stateOf(p, member)); err != nil {
			return err
		}
		seq, err := nextSeq(tx, p)
		if err != nil {
			return err
		}
		return tx.Create(&model.PartyReaction{
			PartyID:      id,
			Seq:          seq,
			UserID:       r.User,
			ReactionType: r.ReactionType,
			ReactedAt:    r.Timestamp,
		}).Error
	})
}

func (s *GormStore) Deactivate(ctx context.Context, id string, at time.Time, pre Precondition) (*model.Session, bool, error) {
	changed := false
	sess, err := s.mutate(ctx, id, func(tx *gorm.DB, p *model.WatchParty) error {
		if err := check(pre, stateOf(p, false)); err != nil {
			return err
		}
		if !p.IsActive {
			return nil
		}
		changed = true
		return tx.Model(&model.WatchParty{}).Where("id = ?", id).Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  at,
		}).Error
	})
	return sess, changed, err
}

// List returns session summaries, newest first.
func (s *GormStore) List(ctx context.Context, filter model.ListFilter) ([]model.Summary, error) {
	q := s.db.WithContext(ctx).Model(&model.WatchParty{})
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if filter.Host != "" {
		q = q.Where("host = ?", filter.Host)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var ents []model.WatchParty
	if err := q.Order("start_time DESC").Order("id").Find(&ents).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(ents) == 0 {
		return []model.Summary{}, nil
	}

	ids := make([]string, 0, len(ents))
	for _, e := range ents {
		ids = append(ids, e.ID)
	}
	var counts []struct {
		PartyID string
		N       int
	}
	if err := s.db.WithContext(ctx).Model(&model.PartyParticipant{}).
		Select("party_id, COUNT(*) AS n").
		Where("party_id IN ?", ids).
		Group("party_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}
	byParty := make(map[string]int, len(counts))
	for _, c := range counts {
		byParty[c.PartyID] = c.N
	}

	out := make([]model.Summary, 0, len(ents))
	for _, e := range ents {
		out = append(out, model.Summary{
			ID:               e.ID,
			Host:             e.Host,
			MovieTitle:       e.MovieTitle,
			StartTime:        e.StartTime,
			IsActive:         e.IsActive,
			ParticipantCount: byParty[e.ID],
		})
	}
	return out, nil
}

// PurgeEnded deletes ended sessions (and their logs) that ended before cutoff.
func (s *GormStore) PurgeEnded(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.WatchParty{}).
			Where("is_active = ? AND ended_at < ?", false, cutoff).
			Order("id").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		for _, child := range []interface{}{&model.PartyParticipant{}, &model.PartyChatMessage{}, &model.PartyReaction{}} {
			if err := tx.Where("party_id IN ?", ids).Delete(child).Error; err != nil {
				return err
			}
		}
		return tx.Where("id IN ?", ids).Delete(&model.WatchParty{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("purge ended sessions: %w", err)
	}
	return ids, nil
}

// Ping checks that the database answers.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func lockParty(tx *gorm.DB, id, strength string) (*model.WatchParty, error) {
	var p model.WatchParty
	if err := tx.Clauses(clause.Locking{Strength: strength}).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.New(errs.ErrSessionNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

func nextSeq(tx *gorm.DB, p *model.WatchParty) (int64, error) {
	p.Seq++
	if err := tx.Model(&model.WatchParty{}).Where("id = ?", p.ID).Update("seq", p.Seq).Error; err != nil {
		return 0, err
	}
	return p.Seq, nil
}

func isMember(tx *gorm.DB, id, user string) (bool, error) {
	if user == "" {
		return false, nil
	}
	var n int64
	if err := tx.Model(&model.PartyParticipant{}).Where("party_id = ? AND user_id = ?", id, user).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func stateOf(p *model.WatchParty, member bool) State {
	return State{ID: p.ID, Host: p.Host, IsActive: p.IsActive, Member: member}
}

func loadSession(tx *gorm.DB, id string) (*model.Session, error) {
	bySeq := func(db *gorm.DB) *gorm.DB { return db.Order("seq") }
	var ent model.WatchParty
	err := tx.Preload("Participants", bySeq).
		Preload("Chat", bySeq).
		Preload("Reactions", bySeq).
		Where("id = ?", id).
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.New(errs.ErrSessionNotFound, id)
		}
		return nil, err
	}
	return entityToSession(&ent), nil
}

func entityToSession(ent *model.WatchParty) *model.Session {
	sess := &model.Session{
		ID:           ent.ID,
		Host:         ent.Host,
		MovieTitle:   ent.MovieTitle,
		StartTime:    ent.StartTime,
		IsActive:     ent.IsActive,
		EndedAt:      ent.EndedAt,
		Participants: make([]string, 0, len(ent.Participants)),
		ChatHistory:  make([]model.ChatMessage, 0, len(ent.Chat)),
		Reactions:    make([]model.Reaction, 0, len(ent.Reactions)),
	}
	for _, p := range ent.Participants {
		sess.Participants = append(sess.Participants, p.UserID)
	}
	for _, m := range ent.Chat {
		sess.ChatHistory = append(sess.ChatHistory, model.ChatMessage{Sender: m.Sender, Message: m.Message, Timestamp: m.SentAt})
	}
	for _, r := range ent.Reactions {
		sess.Reactions = append(sess.Reactions, model.Reaction{User: r.UserID, ReactionType: r.ReactionType, Timestamp: r.ReactedAt})
	}
	return sess
}
