package attendance

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.course(t)

	sess := f.start(t, c.ID, 0)
	if !sess.Active || sess.EndTime.Sub(sess.StartTime) != DefaultSessionDuration {
		t.Fatalf("session = %+v", sess)
	}
	if len(sess.Code) != DefaultCodeLength {
		t.Errorf("code = %q", sess.Code)
	}

	if _, err := f.svc.StartSession(ctx, c.ID, time.Hour); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second start err = %v, want ErrAlreadyActive", err)
	}
	if _, err := f.svc.StartSession(ctx, "missing", time.Hour); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown course err = %v", err)
	}
}

func TestStartSessionDurationBounds(t *testing.T) {
	f := newFixture(t)
	c := f.course(t)
	for _, d := range []time.Duration{-time.Minute, DefaultMaxDuration + time.Second} {
		if _, err := f.svc.StartSession(context.Background(), c.ID, d); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("StartSession(%s) err = %v, want ErrInvalidArgument", d, err)
		}
	}
	sess := f.start(t, c.ID, DefaultMaxDuration)
	if !sess.EndTime.Equal(sess.StartTime.Add(DefaultMaxDuration)) {
		t.Errorf("max duration session = %+v", sess)
	}
}

func TestStopSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.course(t)

	if _, err := f.svc.StopSession(ctx, c.ID); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("stop without session err = %v", err)
	}

	sess := f.start(t, c.ID, 10*time.Minute)
	f.clock.Advance(3 * time.Minute)
	stopped, err := f.svc.StopSession(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stopped.ID != sess.ID || stopped.Active || stopped.EndReason != EndStopped {
		t.Fatalf("stopped = %+v", stopped)
	}
	if stopped.EndedAt == nil || !stopped.EndedAt.Equal(f.clock.Now()) {
		t.Errorf("ended at = %v, want %v", stopped.EndedAt, f.clock.Now())
	}
	if _, err := f.svc.StopSession(ctx, c.ID); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("second stop err = %v", err)
	}

	next := f.start(t, c.ID, 0)
	if next.ID == sess.ID {
		t.Error("a new session should be created after stop")
	}
}

func TestStatusAutoExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.course(t)

	st, err := f.svc.Status(ctx, c.ID)
	if err != nil || st.IsActive || st.Session != nil {
		t.Fatalf("empty status = %+v, %v", st, err)
	}

	sess := f.start(t, c.ID, 5*time.Minute)

	f.clock.Advance(5 * time.Minute)
	st, _ = f.svc.Status(ctx, c.ID)
	if !st.IsActive {
		t.Fatal("session is still active exactly at its end time")
	}

	f.clock.Advance(time.Second)
	st, err = f.svc.Status(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.IsActive || st.Session.ID != sess.ID || st.Session.EndReason != EndExpired {
		t.Fatalf("status after end = %+v", st.Session)
	}
	if !st.Session.EndedAt.Equal(sess.EndTime) {
		t.Errorf("expired session ended at %v, want end time %v", st.Session.EndedAt, sess.EndTime)
	}

	stored, _ := f.store.GetSession(ctx, sess.ID)
	if stored.Active {
		t.Error("expiry should be persisted")
	}

	if _, err := f.svc.StopSession(ctx, c.ID); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("stop after expiry err = %v", err)
	}
	f.start(t, c.ID, 0)
}

func TestExpireIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.course(t)
	sess := f.start(t, c.ID, time.Minute)
	f.clock.Advance(2 * time.Minute)

	var wg sync.WaitGroup
	var changed atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := f.svc.expire(ctx, sess)
			if err != nil {
				t.Error(err)
			}
			if ok {
				changed.Add(1)
			}
		}()
	}
	wg.Wait()
	if changed.Load() != 1 {
		t.Errorf("transitions = %d, want 1", changed.Load())
	}

	expired := 0
	for _, typ := range f.events.types() {
		if typ == EventSessionExpired {
			expired++
		}
	}
	if expired != 1 {
		t.Errorf("expired events = %d, want 1", expired)
	}
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	short := f.course(t)
	long := f.course(t)
	f.start(t, short.ID, time.Minute)
	f.start(t, long.ID, time.Hour)

	f.clock.Advance(10 * time.Minute)
	n, err := f.svc.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v; want 1", n, err)
	}
	if n, _ := f.svc.Sweep(ctx); n != 0 {
		t.Errorf("second sweep = %d, want 0", n)
	}
	st, _ := f.svc.Status(ctx, long.ID)
	if !st.IsActive {
		t.Error("long session should still be active")
	}
}

func TestConcurrentStartOneWins(t *testing.T) {
	f := newFixture(t)
	c := f.course(t)

	const n = 50
	var wg sync.WaitGroup
	var ok, active atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.StartSession(context.Background(), c.ID, 0)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyActive):
				active.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || active.Load() != n-1 {
		t.Fatalf("successes = %d, already active = %d", ok.Load(), active.Load())
	}
}

func TestSessionEvents(t *testing.T) {
	f := newFixture(t)
	c := f.course(t)
	f.start(t, c.ID, 0)
	if _, err := f.svc.StopSession(context.Background(), c.ID); err != nil {
		t.Fatal(err)
	}
	got := f.events.types()
	if len(got) != 2 || got[0] != EventSessionStarted || got[1] != EventSessionStopped {
		t.Errorf("events = %v", got)
	}
}

func TestQRPayload(t *testing.T) {
	f := newFixture(t)
	if got := f.svc.QRPayload("ABC234"); got != "ABC234" {
		t.Errorf("bare payload = %q", got)
	}

	svc := NewService(NewMemoryStore(), Options{QRBaseURL: "https://classroll.example/checkin?src=qr"})
	u, err := url.Parse(svc.QRPayload("ABC234"))
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get("code") != "ABC234" || u.Query().Get("src") != "qr" {
		t.Errorf("payload url = %s", u)
	}

	c := f.course(t)
	if _, _, err := f.svc.ActivePayload(context.Background(), c.ID); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("ActivePayload err = %v", err)
	}
	sess := f.start(t, c.ID, 0)
	payload, got, err := f.svc.ActivePayload(context.Background(), c.ID)
	if err != nil || payload != sess.Code || got.ID != sess.ID {
		t.Errorf("ActivePayload = %q, %+v, %v", payload, got, err)
	}
}
