package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/watchparty-service/internal/config"
	"github.com/psds-microservice/watchparty-service/internal/errs"
	"github.com/psds-microservice/watchparty-service/internal/model"
	"github.com/psds-microservice/watchparty-service/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.PartyEvent
}

func (r *recordingPublisher) Publish(ev model.PartyEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingPublisher) kinds() []model.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{PartyMaxTitleLen: 64, PartyMaxMessageLen: 32}
}

func openSQLite(t *testing.T) store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "svc.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	st := store.NewGormStore(db)
	if err := st.AutoMigrate(); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return st
}

func forEachService(t *testing.T, fn func(t *testing.T, svc *SessionService, pub *recordingPublisher)) {
	stores := map[string]func(t *testing.T) store.Store{
		"memory":      func(*testing.T) store.Store { return store.NewMemoryStore() },
		"gorm-sqlite": openSQLite,
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			pub := &recordingPublisher{}
			fn(t, NewSessionService(mk(t), testConfig(), pub, nil), pub)
		})
	}
}

func TestWatchPartyScenario(t *testing.T) {
	forEachService(t, func(t *testing.T, svc *SessionService, pub *recordingPublisher) {
		ctx := context.Background()

		s1, err := svc.Create(ctx, "H", "Hearts of Gold")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if !s1.IsActive || fmt.Sprint(s1.Participants) != "[H]" || len(s1.ChatHistory) != 0 || len(s1.Reactions) != 0 {
			t.Fatalf("unexpected new session %+v", s1)
		}

		got, err := svc.Join(ctx, "U1", s1.ID)
		if err != nil || fmt.Sprint(got.Participants) != "[H U1]" {
			t.Fatalf("join: %v %v", got, err)
		}
		got, err = svc.Join(ctx, "U1", s1.ID)
		if err != nil || fmt.Sprint(got.Participants) != "[H U1]" {
			t.Fatalf("second join should be idempotent: %v %v", got, err)
		}

		got, err = svc.PostChat(ctx, "U1", s1.ID, "hi all")
		if err != nil {
			t.Fatalf("chat: %v", err)
		}
		if len(got.ChatHistory) != 1 || got.ChatHistory[0].Sender != "U1" || got.ChatHistory[0].Message != "hi all" {
			t.Fatalf("unexpected chat history %+v", got.ChatHistory)
		}

		got, err = svc.PostReaction(ctx, "H", s1.ID, "❤️")
		if err != nil {
			t.Fatalf("reaction: %v", err)
		}
		if len(got.Reactions) != 1 || got.Reactions[0].User != "H" || got.Reactions[0].ReactionType != "❤️" {
			t.Fatalf("unexpected reactions %+v", got.Reactions)
		}

		if err := svc.End(ctx, "H", s1.ID); err != nil {
			t.Fatalf("end: %v", err)
		}
		got, _ = svc.Get(ctx, s1.ID)
		if got.IsActive {
			t.Fatal("expected party to be inactive")
		}

		_, err = svc.PostChat(ctx, "U1", s1.ID, "bye")
		if !errors.Is(err, errs.ErrSessionInactive) {
			t.Fatalf("expected ErrSessionInactive, got %v", err)
		}
		if errs.SessionIDOf(err) != s1.ID {
			t.Errorf("expected error to carry session id")
		}
		got, _ = svc.Get(ctx, s1.ID)
		if len(got.ChatHistory) != 1 {
			t.Fatalf("chat history changed after end: %+v", got.ChatHistory)
		}

		if err := svc.Leave(ctx, "U2", s1.ID); err != nil {
			t.Fatalf("non-member leave should succeed: %v", err)
		}

		want := []model.EventKind{
			model.EventParticipantJoined,
			model.EventChatMessage,
			model.EventReaction,
			model.EventPartyEnded,
		}
		if fmt.Sprint(pub.kinds()) != fmt.Sprint(want) {
			t.Errorf("expected events %v, got %v", want, pub.kinds())
		}
	})
}

func TestCreateValidation(t *testing.T) {
	svc := NewSessionService(store.NewMemoryStore(), testConfig(), nil, nil)
	ctx := context.Background()
	tests := []struct {
		name, caller, title string
	}{
		{"empty title", "H", ""},
		{"blank title", "H", "   "},
		{"empty caller", "", "Movie"},
		{"title too long", "H", string(make([]byte, 65))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.caller, tt.title); !errors.Is(err, errs.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestUniqueSessionIDs(t *testing.T) {
	svc := NewSessionService(store.NewMemoryStore(), testConfig(), nil, nil)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := svc.Create(context.Background(), "H", "m")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if seen[s.ID] {
			t.Fatalf("duplicate id %s", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestNotFound(t *testing.T) {
	forEachService(t, func(t *testing.T, svc *SessionService, _ *recordingPublisher) {
		ctx := context.Background()
		calls := map[string]func() error{
			"get":      func() error { _, err := svc.Get(ctx, "nope"); return err },
			"join":     func() error { _, err := svc.Join(ctx, "U", "nope"); return err },
			"leave":    func() error { return svc.Leave(ctx, "U", "nope") },
			"chat":     func() error { _, err := svc.PostChat(ctx, "U", "nope", "x"); return err },
			"reaction": func() error { _, err := svc.PostReaction(ctx, "U", "nope", "x"); return err },
			"end":      func() error { return svc.End(ctx, "U", "nope") },
		}
		for name, call := range calls {
			if err := call(); !errors.Is(err, errs.ErrSessionNotFound) {
				t.Errorf("%s: expected ErrSessionNotFound, got %v", name, err)
			}
		}
	})
}

func TestJoinManyTimesKeepsSingleEntry(t *testing.T) {
	forEachService(t, func(t *testing.T, svc *SessionService, pub *recordingPublisher) {
		ctx := context.Background()
		s, _ := svc.Create(ctx, "H", "m")
		for i := 0; i < 5; i++ {
			if _, err := svc.Join(ctx, "U", s.ID); err != nil {
				t.Fatalf("join: %v", err)
			}
		}
		got, _ := svc.Get(ctx, s.ID)
		count := 0
		for _, p := range got.Participants {
			if p == "U" {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("expected U once, got %v", got.Participants)
		}
		if len(pub.kinds()) != 1 {
			t.Errorf("expected a single join event, got %v", pub.kinds())
		}
	})
}

func TestLeave(t *testing.T) {
	forEachService(t, func(t *testing.T, svc *SessionService, _ *recordingPublisher) {
		ctx := context.Background()
		s, _ := svc.Create(ctx, "H", "m")
		_, _ = svc.Join(ctx, "A", s.ID)
		_, _ = svc.Join(ctx, "B", s.ID)
		_, _ = svc.Join(ctx, "C", s.ID)

		if err := svc.Leave(ctx, "B", s.ID); err != nil {
			t.Fatalf("leave: %v", err)
		}
		for i := 0; i < 3; i++ {
			if err := svc.Leave(ctx, "B", s.ID); err != nil {
				t.Fatalf("repeated leave should succeed: %v", err)
			}
		}
		got, _ := svc.Get(ctx, s.ID)
		if fmt.Sprint(got.Participants) != "[H A C]" {
			t.Fatalf("expected order preserved, got %v", got.Participants)
		}

		// The host may leave its own party; it still owns it.
		if err := svc.Leave(ctx, "H", s.ID); err != nil {
			t.Fatalf("host leave: %v", err)
		}
		if err := svc.End(ctx, "H", s.ID); err != nil {
			t.Fatalf("host end after leaving: %v", err)
		}
	})
}

func TestMutationsRejectedAfterEnd(t *testing.T) {
	forEachService(t, func(t *testing.T, svc *SessionService, _ *recordingPublisher) {
		ctx := context.Background()
		s, _ := svc.Create(ctx, "H", "m")
		_, _ = svc.Join(ctx, "U", s.ID)
		if err := svc.End(ctx, "H", s.ID); err != nil {
			t.Fatalf("end: %v", err)
		}

		if _, err := svc.Join(ctx, "V", s.ID); !errors.Is(err, errs.ErrSessionInactive) {
			t.Errorf("join: expected ErrSessionInactive, got %v", err)
		}
		if _, err := svc.PostChat(ctx, "U", s.ID, "x"); !errors.Is(err, errs.ErrSessionInactive) {
			t.Errorf("chat: expected ErrSessionInactive, got %v", err)
		}
		if _, err := svc.PostReaction(ctx, "U", s.ID, "x"); !errors.Is(err, errs.ErrSessionInactive) {
			t.Errorf("reaction: expected ErrSessionInactive, got %v", err)
		}
		// Member branch of leave fails, non-member branch is a no-op.
		if err := svc.Leave(ctx, "U", s.ID); !errors.Is(err, errs.ErrSessionInactive) {
			t.Errorf("member leave: expected ErrSessionInactive, got %v", err)
		}
		if err := svc.Leave(ctx, "stranger", s.ID); err != nil {
			t.Errorf("non-member leave: expected success, got %v", err)
		}
		got, _ := svc.Get(ctx, s.ID)
		if fmt.Sprint(got.Participants) != "[H U]" {
			t.Errorf("roster changed after end: %v", got.Participants)
		}
	})
}

func TestEndSession(t *testing.T) {
	forEachService(t, func(t *testing.T, svc *SessionService, pub *recordingPublisher) {
		ctx := context.Background()
		s, _ := svc.Create(ctx, "H", "m")
		_, _ = svc.Join(ctx, "U", s.ID)

		if err := svc.End(ctx, "U", s.ID); !errors.Is(err, errs.ErrNotHost) {
			t.Fatalf("expected ErrNotHost, got %v", err)
		}
		got, _ := svc.Get(ctx, s.ID)
		if !got.IsActive {
			t.Fatal("non-host end must not deactivate")
		}

		if err := svc.End(ctx, "H", s.ID); err != nil {
			t.Fatalf("first end: %v", err)
		}
		if err := svc.End(ctx, "H", s.ID); err != nil {
			t.Fatalf("second end: %v", err)
		}
		got, _ = svc.Get(ctx, s.ID)
		if got.IsActive {
			t.Fatal("expected party to stay ended")
		}
		if err := svc.End(ctx, "U", s.ID); !errors.Is(err, errs.ErrNotHost) {
			t.Errorf("non-host end on ended party: expected ErrNotHost, got %v", err)
		}

		ended := 0
		for _, k := range pub.kinds() {
			if k == model.EventPartyEnded {
				ended++
			}
		}
		if ended != 1 {
			t.Errorf("expected exactly one party_ended event, got %d", ended)
		}
	})
}

func TestChatPermissiveMembershipAndValidation(t *testing.T) {
	forEachService(t, func(t *testing.T, svc *SessionService, _ *recordingPublisher) {
		ctx := context.Background()
		s, _ := svc.Create(ctx, "H", "m")

		got, err := svc.PostChat(ctx, "outsider", s.ID, "hello")
		if err != nil {
			t.Fatalf("outsider chat: %v", err)
		}
		if got.HasParticipant("outsider") {
			t.Error("posting must not grant membership")
		}

		if _, err := svc.PostChat(ctx, "H", s.ID, " "); !errors.Is(err, errs.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for blank message, got %v", err)
		}
		if _, err := svc.PostChat(ctx, "H", s.ID, string(make([]byte, 33))); !errors.Is(err, errs.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for long message, got %v", err)
		}
		if _, err := svc.PostReaction(ctx, "H", s.ID, ""); !errors.Is(err, errs.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for empty reaction, got %v", err)
		}

		for i := 0; i < 3; i++ {
			got, err = svc.PostReaction(ctx, "H", s.ID, "🔥")
			if err != nil {
				t.Fatalf("reaction: %v", err)
			}
		}
		if len(got.Reactions) != 3 {
			t.Errorf("expected reactions not to be de-duplicated, got %d", len(got.Reactions))
		}
	})
}

func TestLogsNeverShrink(t *testing.T) {
	svc := NewSessionService(store.NewMemoryStore(), testConfig(), nil, nil)
	ctx := context.Background()
	s, _ := svc.Create(ctx, "H", "m")
	prevChat, prevReact := 0, 0
	actions := []func(){
		func() { _, _ = svc.PostChat(ctx, "A", s.ID, "1") },
		func() { _, _ = svc.Join(ctx, "A", s.ID) },
		func() { _, _ = svc.PostReaction(ctx, "A", s.ID, "x") },
		func() { _ = svc.Leave(ctx, "A", s.ID) },
		func() { _, _ = svc.PostChat(ctx, "B", s.ID, "2") },
		func() { _ = svc.End(ctx, "H", s.ID) },
		func() { _, _ = svc.PostChat(ctx, "B", s.ID, "3") },
	}
	for i, act := range actions {
		act()
		got, _ := svc.Get(ctx, s.ID)
		if len(got.ChatHistory) < prevChat || len(got.Reactions) < prevReact {
			t.Fatalf("step %d: log shrank", i)
		}
		prevChat, prevReact = len(got.ChatHistory), len(got.Reactions)
	}
	if prevChat != 2 || prevReact != 1 {
		t.Errorf("expected 2 chat and 1 reaction, got %d and %d", prevChat, prevReact)
	}
}

func TestEndRacingChatNeverAdmitsLatePost(t *testing.T) {
	forEachService(t, func(t *testing.T, svc *SessionService, _ *recordingPublisher) {
		ctx := context.Background()
		s, _ := svc.Create(ctx, "H", "m")

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					_, err := svc.PostChat(ctx, fmt.Sprintf("u%d", w), s.ID, "m")
					switch {
					case err == nil:
						mu.Lock()
						accepted++
						mu.Unlock()
					case !errors.Is(err, errs.ErrSessionInactive):
						t.Errorf("unexpected error %v", err)
					}
				}
			}(w)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.End(ctx, "H", s.ID); err != nil {
				t.Errorf("end: %v", err)
			}
		}()
		wg.Wait()

		got, _ := svc.Get(ctx, s.ID)
		if len(got.ChatHistory) != accepted {
			t.Fatalf("accepted %d posts but log holds %d", accepted, len(got.ChatHistory))
		}
		if _, err := svc.PostChat(ctx, "late", s.ID, "m"); !errors.Is(err, errs.ErrSessionInactive) {
			t.Fatalf("expected ErrSessionInactive after end, got %v", err)
		}
	})
}

func TestClockStampsEntries(t *testing.T) {
	svc := NewSessionService(store.NewMemoryStore(), testConfig(), nil, nil)
	fixed := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()
	s, _ := svc.Create(ctx, "H", "m")
	got, _ := svc.PostChat(ctx, "H", s.ID, "x")
	if !s.StartTime.Equal(fixed) || !got.ChatHistory[0].Timestamp.Equal(fixed) {
		t.Fatalf("expected timestamps from clock, got %v and %v", s.StartTime, got.ChatHistory[0].Timestamp)
	}
}

func TestList(t *testing.T) {
	svc := NewSessionService(store.NewMemoryStore(), testConfig(), nil, nil)
	ctx := context.Background()
	a, _ := svc.Create(ctx, "H", "a")
	_, _ = svc.Create(ctx, "G", "b")
	_ = svc.End(ctx, "H", a.ID)

	active, err := svc.List(ctx, model.ListFilter{ActiveOnly: true})
	if err != nil || len(active) != 1 || active[0].Host != "G" {
		t.Fatalf("expected one active party hosted by G, got %+v err=%v", active, err)
	}
	if _, err := svc.List(ctx, model.ListFilter{Limit: -1}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for negative limit, got %v", err)
	}
}
