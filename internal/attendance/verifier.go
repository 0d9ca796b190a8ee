package attendance

import (
	"context"
	"log"

	"classroll/internal/metrics"
)

// SubmitAttendance marks studentID present in the course's active session if code matches.
//
// Checks run in a fixed order: course exists, a session is active (after auto-expiry), the code
// matches, the student is enrolled, and no mark exists yet. Code comparison ignores case and
// surrounding whitespace. The duplicate check is the ledger insert itself, so concurrent
// double-submits produce one record and one ErrAlreadyRecorded.
func (s *Service) SubmitAttendance(ctx context.Context, studentID, courseID, code string) (Record, error) {
	rec, err := s.submit(ctx, studentID, courseID, code)
	outcome := "ok"
	if err != nil {
		outcome = Kind(err)
	}
	metrics.Submissions.WithLabelValues(outcome).Inc()
	return rec, err
}

func (s *Service) submit(ctx context.Context, studentID, courseID, code string) (Record, error) {
	if studentID == "" {
		return Record{}, invalid("student required")
	}

	st, err := s.Status(ctx, courseID)
	if err != nil {
		return Record{}, err
	}
	if !st.IsActive {
		return Record{}, ErrNoActiveSession
	}
	sess := st.Session

	if NormalizeCode(code) != NormalizeCode(sess.Code) {
		return Record{}, ErrCodeMismatch
	}

	ok, err := s.store.IsEnrolled(ctx, courseID, studentID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotEnrolled
	}

	rec := Record{
		StudentID: studentID,
		SessionID: sess.ID,
		CourseID:  courseID,
		MarkedAt:  s.now(),
	}
	if err := s.store.RecordAttendance(ctx, rec); err != nil {
		return Record{}, err
	}

	log.Printf("attendance recorded: student %s session %s", studentID, sess.ID)
	s.emit(ctx, Event{Type: EventAttendanceRecorded, CourseID: courseID, SessionID: sess.ID, StudentID: studentID, At: rec.MarkedAt})
	return rec, nil
}
