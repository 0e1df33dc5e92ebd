package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/watchparty-service/internal/errs"
	"github.com/psds-microservice/watchparty-service/internal/model"
)

// party is the in-memory state of one session. mu serializes every
// mutation of this session only.
type party struct {
	mu         sync.Mutex
	id         string
	host       string
	movieTitle string
	startTime  time.Time
	active     bool
	endedAt    *time.Time
	purged     bool

	roster    Roster
	chat      Log[model.ChatMessage]
	reactions Log[model.Reaction]
}

func (p *party) state(user string) State {
	return State{ID: p.id, Host: p.host, IsActive: p.active, Member: user != "" && p.roster.Has(user)}
}

func (p *party) snapshot() *model.Session {
	sess := &model.Session{
		ID:           p.id,
		Host:         p.host,
		MovieTitle:   p.movieTitle,
		StartTime:    p.startTime,
		IsActive:     p.active,
		Participants: p.roster.Snapshot(),
		ChatHistory:  p.chat.Snapshot(),
		Reactions:    p.reactions.Snapshot(),
	}
	if p.endedAt != nil {
		t := *p.endedAt
		sess.EndedAt = &t
	}
	return sess
}

// MemoryStore keeps sessions in process memory. The map lock is only held
// for lookup and insertion; mutations of different sessions run in parallel.
type MemoryStore struct {
	mu      sync.RWMutex
	parties map[string]*party
	// issued remembers every id ever allocated so purged ids are not handed out again.
	issued map[string]struct{}
	newID  func() string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		parties: make(map[string]*party),
		issued:  make(map[string]struct{}),
		newID:   func() string { return uuid.New().String() },
	}
}

// Allocate creates a new active session with the host auto-joined.
func (s *MemoryStore) Allocate(_ context.Context, host, movieTitle string, startTime time.Time) (*model.Session, error) {
	p := &party{
		host:       host,
		movieTitle: movieTitle,
		startTime:  startTime,
		active:     true,
	}
	p.roster.Add(host)

	s.mu.Lock()
	for {
		id := s.newID()
		if _, taken := s.issued[id]; !taken {
			p.id = id
			break
		}
	}
	s.issued[p.id] = struct{}{}
	s.parties[p.id] = p
	s.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(), nil
}

func (s *MemoryStore) lookup(id string) (*party, error) {
	s.mu.RLock()
	p, ok := s.parties[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.ErrSessionNotFound, id)
	}
	return p, nil
}

// lock returns the party with its mutex held. A party purged between lookup
// and lock reads as not found.
func (s *MemoryStore) lock(id string) (*party, error) {
	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.purged {
		p.mu.Unlock()
		return nil, errs.New(errs.ErrSessionNotFound, id)
	}
	return p, nil
}

// Read returns a point-in-time snapshot of the session.
func (s *MemoryStore) Read(_ context.Context, id string) (*model.Session, error) {
	p, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer p.mu.Unlock()
	return p.snapshot(), nil
}

func (s *MemoryStore) AppendParticipant(_ context.Context, id, user string, _ time.Time, pre Precondition) (*model.Session, bool, error) {
	p, err := s.lock(id)
	if err != nil {
		return nil, false, err
	}
	defer p.mu.Unlock()
	if err := check(pre, p.state(user)); err != nil {
		return nil, false, err
	}
	changed := p.roster.Add(user)
	return p.snapshot(), changed, nil
}

func (s *MemoryStore) RemoveParticipant(_ context.Context, id, user string, pre Precondition) (*model.Session, bool, error) {
	p, err := s.lock(id)
	if err != nil {
		return nil, false, err
	}
	defer p.mu.Unlock()
	if err := check(pre, p.state(user)); err != nil {
		return nil, false, err
	}
	changed := p.roster.Remove(user)
	return p.snapshot(), changed, nil
}

func (s *MemoryStore) AppendChat(_ context.Context, id string, msg model.ChatMessage, pre Precondition) (*model.Session, error) {
	p, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer p.mu.Unlock()
	if err := check(pre, p.state(msg.Sender)); err != nil {
		return nil, err
	}
	p.chat.Append(msg)
	return p.snapshot(), nil
}

func (s *MemoryStore) AppendReaction(_ context.Context, id string, r model.Reaction, pre Precondition) (*model.Session, error) {
	p, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer p.mu.Unlock()
	if err := check(pre, p.state(r.User)); err != nil {
		return nil, err
	}
	p.reactions.Append(r)
	return p.snapshot(), nil
}

func (s *MemoryStore) Deactivate(_ context.Context, id string, at time.Time, pre Precondition) (*model.Session, bool, error) {
	p, err := s.lock(id)
	if err != nil {
		return nil, false, err
	}
	defer p.mu.Unlock()
	if err := check(pre, p.state("")); err != nil {
		return nil, false, err
	}
	if !p.active {
		return p.snapshot(), false, nil
	}
	p.active = false
	ended := at
	p.endedAt = &ended
	return p.snapshot(), true, nil
}

// List returns session summaries, newest first.
func (s *MemoryStore) List(_ context.Context, filter model.ListFilter) ([]model.Summary, error) {
	s.mu.RLock()
	parties := make([]*party, 0, len(s.parties))
	for _, p := range s.parties {
		parties = append(parties, p)
	}
	s.mu.RUnlock()

	out := make([]model.Summary, 0, len(parties))
	for _, p := range parties {
		p.mu.Lock()
		if p.purged || (filter.ActiveOnly && !p.active) || (filter.Host != "" && p.host != filter.Host) {
			p.mu.Unlock()
			continue
		}
		out = append(out, model.Summary{
			ID:               p.id,
			Host:             p.host,
			MovieTitle:       p.movieTitle,
			StartTime:        p.startTime,
			IsActive:         p.active,
			ParticipantCount: p.roster.Len(),
		})
		p.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// PurgeEnded drops ended sessions whose end time is before cutoff.
func (s *MemoryStore) PurgeEnded(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged []string
	for id, p := range s.parties {
		p.mu.Lock()
		if !p.active && p.endedAt != nil && p.endedAt.Before(cutoff) {
			p.purged = true
			delete(s.parties, id)
			purged = append(purged, id)
		}
		p.mu.Unlock()
	}
	sort.Strings(purged)
	return purged, nil
}
