package attendance

import (
	"context"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"

	"classroll/internal/metrics"
)

// StartSession opens an attendance window of duration d for a course. A zero d selects the
// configured default.
func (s *Service) StartSession(ctx context.Context, courseID string, d time.Duration) (Session, error) {
	if d == 0 {
		d = s.defaultDuration
	}
	if d < 0 || d > s.maxDuration {
		return Session{}, invalid("duration must be between 0 and %s", s.maxDuration)
	}

	// Status expires an overdue session first so it does not block the new one.
	st, err := s.Status(ctx, courseID)
	if err != nil {
		return Session{}, err
	}
	if st.IsActive {
		return Session{}, ErrAlreadyActive
	}

	var sess Session
	_, err = s.codes.Generate(ctx, func(ctx context.Context, code string) error {
		now := s.now()
		sess = Session{
			ID:        uuid.NewString(),
			CourseID:  courseID,
			Code:      code,
			StartTime: now,
			EndTime:   now.Add(d),
			Active:    true,
		}
		return s.store.CreateSession(ctx, sess)
	})
	if err != nil {
		return Session{}, err
	}

	metrics.SessionsStarted.Inc()
	log.Printf("session %s started for course %s until %s", sess.ID, courseID, sess.EndTime.Format(time.RFC3339))
	s.emit(ctx, Event{Type: EventSessionStarted, CourseID: courseID, SessionID: sess.ID, At: sess.StartTime})
	return sess, nil
}

// StopSession closes the course's active session. Stopping twice fails with ErrNoActiveSession.
func (s *Service) StopSession(ctx context.Context, courseID string) (Session, error) {
	st, err := s.Status(ctx, courseID)
	if err != nil {
		return Session{}, err
	}
	if !st.IsActive {
		return Session{}, ErrNoActiveSession
	}

	now := s.now()
	changed, err := s.store.DeactivateSession(ctx, st.Session.ID, now, EndStopped)
	if err != nil {
		return Session{}, err
	}
	if !changed {
		// Lost a race with another stop or the sweep.
		return Session{}, ErrNoActiveSession
	}

	metrics.SessionsClosed.WithLabelValues(EndStopped).Inc()
	log.Printf("session %s stopped for course %s", st.Session.ID, courseID)
	s.emit(ctx, Event{Type: EventSessionStopped, CourseID: courseID, SessionID: st.Session.ID, At: now})
	return s.store.GetSession(ctx, st.Session.ID)
}

// Status returns the course's active session, or its most recent one, with IsActive derived as
// active && now <= end. An overdue session is expired and persisted before returning.
func (s *Service) Status(ctx context.Context, courseID string) (Status, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return Status{}, err
	}

	sess, err := s.store.ActiveSession(ctx, courseID)
	switch {
	case err == nil:
		if sess.Due(s.now()) {
			expired, err := s.Expire(ctx, sess)
			if err != nil {
				return Status{}, err
			}
			return Status{Session: &expired}, nil
		}
		return Status{Session: &sess, IsActive: true}, nil
	case isNotFound(err):
		latest, err := s.store.LatestSession(ctx, courseID)
		if isNotFound(err) {
			return Status{}, nil
		}
		if err != nil {
			return Status{}, err
		}
		return Status{Session: &latest, IsActive: latest.Active && !s.now().After(latest.EndTime)}, nil
	default:
		return Status{}, err
	}
}

// Expire transitions sess to inactive if it is still active. It is idempotent: concurrent or
// repeated calls leave the same final state and only the first records the transition.
func (s *Service) Expire(ctx context.Context, sess Session) (Session, error) {
	after, _, err := s.expire(ctx, sess)
	return after, err
}

func (s *Service) expire(ctx context.Context, sess Session) (Session, bool, error) {
	changed, err := s.store.DeactivateSession(ctx, sess.ID, sess.EndTime, EndExpired)
	if err != nil {
		return Session{}, false, err
	}
	if changed {
		metrics.SessionsClosed.WithLabelValues(EndExpired).Inc()
		log.Printf("session %s for course %s expired", sess.ID, sess.CourseID)
		s.emit(ctx, Event{Type: EventSessionExpired, CourseID: sess.CourseID, SessionID: sess.ID, At: sess.EndTime})
	}
	after, err := s.store.GetSession(ctx, sess.ID)
	return after, changed, err
}

// Sweep expires every overdue session and returns how many it transitioned.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	due, err := s.store.ListDueSessions(ctx, s.now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range due {
		_, changed, err := s.expire(ctx, sess)
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	return n, nil
}

// ListSessions returns every session of a course, newest first.
func (s *Service) ListSessions(ctx context.Context, courseID string) ([]Session, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return s.store.ListSessions(ctx, courseID)
}

// QRPayload returns the string a QR code for this code should encode.
func (s *Service) QRPayload(code string) string {
	if s.qrBaseURL == "" {
		return code
	}
	u, err := url.Parse(s.qrBaseURL)
	if err != nil {
		return code
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}

// ActivePayload resolves the course's active session and returns its QR payload.
func (s *Service) ActivePayload(ctx context.Context, courseID string) (string, Session, error) {
	st, err := s.Status(ctx, courseID)
	if err != nil {
		return "", Session{}, err
	}
	if !st.IsActive {
		return "", Session{}, ErrNoActiveSession
	}
	return s.QRPayload(st.Session.Code), *st.Session, nil
}
