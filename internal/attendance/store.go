package attendance

import (
	"context"
	"time"
)

// Store is the persistence layer for courses, sessions, the attendance ledger and principals.
// Implementations must make CreateSession, DeactivateSession and RecordAttendance atomic with
// respect to the invariants they guard.
type Store interface {
	CreateCourse(ctx context.Context, c Course) error // ErrCodeTaken if the join code exists
	GetCourse(ctx context.Context, id string) (Course, error)
	GetCourseByJoinCode(ctx context.Context, joinCode string) (Course, error)
	DeleteCourse(ctx context.Context, id string) error
	ListCoursesByOwner(ctx context.Context, ownerID string) ([]Course, error)
	ListCoursesByStudent(ctx context.Context, studentID string) ([]Course, error)
	Enroll(ctx context.Context, courseID, studentID string) error
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	ListEnrolled(ctx context.Context, courseID string) ([]string, error)

	// CreateSession inserts s unless the course already has an active session (ErrAlreadyActive)
	// or another active session holds s.Code (ErrCodeTaken).
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	// ActiveSession returns the active-flagged session of a course, due or not, or ErrNotFound.
	ActiveSession(ctx context.Context, courseID string) (Session, error)
	// LatestSession returns the most recently started session of a course, or ErrNotFound.
	LatestSession(ctx context.Context, courseID string) (Session, error)
	// DeactivateSession clears the active flag if still set and reports whether it changed anything.
	DeactivateSession(ctx context.Context, id string, at time.Time, reason string) (bool, error)
	ListSessions(ctx context.Context, courseID string) ([]Session, error)
	ListDueSessions(ctx context.Context, now time.Time) ([]Session, error)
	CountSessions(ctx context.Context, courseID string) (int, error)

	// RecordAttendance inserts r only while its session is active and r.MarkedAt is within the
	// session window, checked atomically with the insert. It returns ErrNoActiveSession when the
	// session has closed and ErrAlreadyRecorded for a duplicate.
	RecordAttendance(ctx context.Context, r Record) error
	ListSessionRecords(ctx context.Context, sessionID string) ([]Record, error)
	CountStudentRecords(ctx context.Context, courseID, studentID string) (int, error)

	// CreateUser inserts u or returns ErrAlreadyExists if the id is taken.
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	// ConsumeRefreshToken revokes an unexpired, unrevoked token and returns its owner.
	ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (string, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Repository)(nil)
)
