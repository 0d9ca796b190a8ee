package attendance

import (
	"context"
	"time"
)

// InstructorActions is what an authenticated instructor may do. Course-scoped calls fail with
// ErrForbidden unless the instructor owns the course.
type InstructorActions interface {
	CreateCourse(ctx context.Context, name string) (Course, error)
	DeleteCourse(ctx context.Context, courseID string) error
	Courses(ctx context.Context) ([]Course, error)
	StartSession(ctx context.Context, courseID string, d time.Duration) (Session, error)
	StopSession(ctx context.Context, courseID string) (Session, error)
	Status(ctx context.Context, courseID string) (Status, error)
	Sessions(ctx context.Context, courseID string) ([]Session, error)
	QRPayload(ctx context.Context, courseID string) (string, Session, error)
	Report(ctx context.Context, courseID string) ([]StudentRatio, error)
	Roster(ctx context.Context, sessionID string) ([]Record, error)
}

// StudentActions is what an authenticated student may do.
type StudentActions interface {
	JoinCourse(ctx context.Context, joinCode string) (Course, error)
	Courses(ctx context.Context) ([]Course, error)
	Status(ctx context.Context, courseID string) (Status, error)
	SubmitAttendance(ctx context.Context, courseID, code string) (Record, error)
	Ratio(ctx context.Context, courseID string) (Ratio, error)
}

// ForInstructor scopes the service to one instructor.
func (s *Service) ForInstructor(id string) InstructorActions {
	return &instructor{svc: s, id: id}
}

// ForStudent scopes the service to one student.
func (s *Service) ForStudent(id string) StudentActions {
	return &student{svc: s, id: id}
}

type instructor struct {
	svc *Service
	id  string
}

func (i *instructor) owned(ctx context.Context, courseID string) error {
	c, err := i.svc.store.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if c.OwnerID != i.id {
		return ErrForbidden
	}
	return nil
}

func (i *instructor) CreateCourse(ctx context.Context, name string) (Course, error) {
	return i.svc.CreateCourse(ctx, i.id, name)
}

func (i *instructor) DeleteCourse(ctx context.Context, courseID string) error {
	if err := i.owned(ctx, courseID); err != nil {
		return err
	}
	return i.svc.DeleteCourse(ctx, courseID)
}

func (i *instructor) Courses(ctx context.Context) ([]Course, error) {
	return i.svc.CoursesOwnedBy(ctx, i.id)
}

func (i *instructor) StartSession(ctx context.Context, courseID string, d time.Duration) (Session, error) {
	if err := i.owned(ctx, courseID); err != nil {
		return Session{}, err
	}
	return i.svc.StartSession(ctx, courseID, d)
}

func (i *instructor) StopSession(ctx context.Context, courseID string) (Session, error) {
	if err := i.owned(ctx, courseID); err != nil {
		return Session{}, err
	}
	return i.svc.StopSession(ctx, courseID)
}

func (i *instructor) Status(ctx context.Context, courseID string) (Status, error) {
	if err := i.owned(ctx, courseID); err != nil {
		return Status{}, err
	}
	return i.svc.Status(ctx, courseID)
}

func (i *instructor) Sessions(ctx context.Context, courseID string) ([]Session, error) {
	if err := i.owned(ctx, courseID); err != nil {
		return nil, err
	}
	return i.svc.ListSessions(ctx, courseID)
}

func (i *instructor) QRPayload(ctx context.Context, courseID string) (string, Session, error) {
	if err := i.owned(ctx, courseID); err != nil {
		return "", Session{}, err
	}
	return i.svc.ActivePayload(ctx, courseID)
}

func (i *instructor) Report(ctx context.Context, courseID string) ([]StudentRatio, error) {
	if err := i.owned(ctx, courseID); err != nil {
		return nil, err
	}
	return i.svc.CourseReport(ctx, courseID)
}

func (i *instructor) Roster(ctx context.Context, sessionID string) ([]Record, error) {
	sess, err := i.svc.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := i.owned(ctx, sess.CourseID); err != nil {
		return nil, err
	}
	return i.svc.SessionRoster(ctx, sessionID)
}

type student struct {
	svc *Service
	id  string
}

func (st *student) JoinCourse(ctx context.Context, joinCode string) (Course, error) {
	return st.svc.JoinCourse(ctx, st.id, joinCode)
}

func (st *student) Courses(ctx context.Context) ([]Course, error) {
	return st.svc.CoursesEnrolled(ctx, st.id)
}

// Status hides the session code; students must get it from the room.
// Only enrolled students may look at a course's session.
func (st *student) Status(ctx context.Context, courseID string) (Status, error) {
	if _, err := st.svc.store.GetCourse(ctx, courseID); err != nil {
		return Status{}, err
	}
	enrolled, err := st.svc.store.IsEnrolled(ctx, courseID, st.id)
	if err != nil {
		return Status{}, err
	}
	if !enrolled {
		return Status{}, ErrNotEnrolled
	}
	status, err := st.svc.Status(ctx, courseID)
	if err != nil {
		return Status{}, err
	}
	if status.Session != nil {
		redacted := *status.Session
		redacted.Code = ""
		status.Session = &redacted
	}
	return status, nil
}

func (st *student) SubmitAttendance(ctx context.Context, courseID, code string) (Record, error) {
	return st.svc.SubmitAttendance(ctx, st.id, courseID, code)
}

func (st *student) Ratio(ctx context.Context, courseID string) (Ratio, error) {
	return st.svc.AttendanceRatio(ctx, st.id, courseID)
}
