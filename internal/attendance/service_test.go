package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"classroll/internal/queue"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, msg queue.Message) error {
	evt, err := DecodeEvent(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *MemoryStore
	clock  *testClock
	events *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  NewMemoryStore(),
		clock:  &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		events: &recordingPublisher{},
	}
	f.svc = NewService(f.store, Options{Now: f.clock.Now, Events: f.events})
	return f
}

// course creates a course owned by "prof" with the given students enrolled.
func (f *fixture) course(t *testing.T, students ...string) Course {
	t.Helper()
	ctx := context.Background()
	c, err := f.svc.CreateCourse(ctx, "prof", "Operating Systems")
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	for _, s := range students {
		if _, err := f.svc.JoinCourse(ctx, s, c.JoinCode); err != nil {
			t.Fatalf("join %s: %v", s, err)
		}
	}
	return c
}

func (f *fixture) start(t *testing.T, courseID string, d time.Duration) Session {
	t.Helper()
	sess, err := f.svc.StartSession(context.Background(), courseID, d)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return sess
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrAlreadyActive, "already_active"},
		{ErrNoActiveSession, "no_active_session"},
		{ErrCodeMismatch, "code_mismatch"},
		{ErrNotEnrolled, "not_enrolled"},
		{ErrAlreadyRecorded, "already_recorded"},
		{ErrNotFound, "not_found"},
		{ErrForbidden, "forbidden"},
		{ErrOwnerCannotEnroll, "owner_cannot_enroll"},
		{ErrAlreadyExists, "already_exists"},
		{invalid("duration %d", 3), "invalid_argument"},
		{storageErr("get course", errors.New("conn reset")), "storage_unavailable"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range tests {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestStorageErrorUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := storageErr("insert session", cause)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Error("storage error should match ErrStorageUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("storage error should unwrap to its cause")
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "insert session" {
		t.Errorf("errors.As = %+v", se)
	}
}

func TestRegisterUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.RegisterUser(ctx, "", "  Alice ", RoleStudent)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID == "" || u.Name != "Alice" {
		t.Fatalf("user = %+v", u)
	}
	for _, role := range []string{RoleStudent, RoleInstructor} {
		if _, err := f.svc.RegisterUser(ctx, u.ID, "Mallory", role); !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("re-register as %s err = %v, want ErrAlreadyExists", role, err)
		}
	}
	if got, _ := f.svc.store.GetUser(ctx, u.ID); got.Name != "Alice" {
		t.Errorf("re-register overwrote user: %+v", got)
	}
	if _, err := f.svc.RegisterUser(ctx, "", "Eve", "admin"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad role err = %v", err)
	}

	if err := f.svc.RememberRefreshToken(ctx, u.ID, "tok", f.clock.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.RedeemRefreshToken(ctx, "tok")
	if err != nil || got.ID != u.ID {
		t.Fatalf("redeem = %+v, %v", got, err)
	}
	if _, err := f.svc.RedeemRefreshToken(ctx, "tok"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second redeem err = %v", err)
	}

	_ = f.svc.RememberRefreshToken(ctx, u.ID, "old", f.clock.Now().Add(time.Minute))
	f.clock.Advance(2 * time.Minute)
	if _, err := f.svc.RedeemRefreshToken(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired redeem err = %v", err)
	}
}
