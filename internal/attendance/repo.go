package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Constraint names from the migrations; unique violations are mapped through them.
const (
	conCourseJoinCode   = "courses_join_code_key"
	conOneActivePerCrs  = "sessions_one_active_per_course"
	conActiveCode       = "sessions_active_code"
	conRecordPerStudent = "attendance_records_pkey"
	conUserPK           = "users_pkey"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// mapErr turns driver errors into domain errors, wrapping everything else as a storage failure.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			switch pgErr.ConstraintName {
			case conCourseJoinCode, conActiveCode:
				return ErrCodeTaken
			case conOneActivePerCrs:
				return ErrAlreadyActive
			case conRecordPerStudent:
				return ErrAlreadyRecorded
			case conUserPK:
				return ErrAlreadyExists
			}
		case "23503": // foreign_key_violation
			return ErrNotFound
		}
	}
	return storageErr(op, err)
}

const courseColumns = `id, name, join_code, owner_id, created_at`

func scanCourse(row interface{ Scan(...any) error }) (Course, error) {
	var c Course
	err := row.Scan(&c.ID, &c.Name, &c.JoinCode, &c.OwnerID, &c.CreatedAt)
	return c, err
}

// CreateCourse inserts a course; a duplicate join code yields ErrCodeTaken.
func (r *Repository) CreateCourse(ctx context.Context, c Course) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO courses (id, name, join_code, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Name, c.JoinCode, c.OwnerID, c.CreatedAt)
	return mapErr("create course", err)
}

// GetCourse returns a course by id.
func (r *Repository) GetCourse(ctx context.Context, id string) (Course, error) {
	c, err := scanCourse(r.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
	return c, mapErr("get course", err)
}

// GetCourseByJoinCode returns a course by its join code.
func (r *Repository) GetCourseByJoinCode(ctx context.Context, joinCode string) (Course, error) {
	c, err := scanCourse(r.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE join_code = $1`, joinCode))
	return c, mapErr("get course by join code", err)
}

// DeleteCourse removes a course; sessions, enrollments and records cascade.
func (r *Repository) DeleteCourse(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete course", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) listCourses(ctx context.Context, op, query string, arg string) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()
	var res []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		res = append(res, c)
	}
	return res, mapErr(op, rows.Err())
}

// ListCoursesByOwner returns an instructor's courses, oldest first.
func (r *Repository) ListCoursesByOwner(ctx context.Context, ownerID string) ([]Course, error) {
	return r.listCourses(ctx, "list owned courses", `
		SELECT `+courseColumns+` FROM courses WHERE owner_id = $1 ORDER BY created_at
	`, ownerID)
}

// ListCoursesByStudent returns the courses a student is enrolled in.
func (r *Repository) ListCoursesByStudent(ctx context.Context, studentID string) ([]Course, error) {
	return r.listCourses(ctx, "list enrolled courses", `
		SELECT c.id, c.name, c.join_code, c.owner_id, c.created_at
		FROM courses c JOIN enrollments e ON e.course_id = c.id
		WHERE e.student_id = $1
		ORDER BY c.created_at
	`, studentID)
}

// Enroll adds a student to a course; enrolling twice is a no-op.
func (r *Repository) Enroll(ctx context.Context, courseID, studentID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (course_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (course_id, student_id) DO NOTHING
	`, courseID, studentID)
	return mapErr("enroll", err)
}

// IsEnrolled reports whether a student is in a course.
func (r *Repository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2)
	`, courseID, studentID).Scan(&ok)
	return ok, mapErr("check enrollment", err)
}

// ListEnrolled returns the student ids of a course.
func (r *Repository) ListEnrolled(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM enrollments WHERE course_id = $1 ORDER BY student_id
	`, courseID)
	if err != nil {
		return nil, mapErr("list enrolled", err)
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapErr("list enrolled", err)
		}
		res = append(res, id)
	}
	return res, mapErr("list enrolled", rows.Err())
}

const sessionColumns = `id, course_id, code, start_time, end_time, active, ended_at, end_reason`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		s       Session
		endedAt sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.CourseID, &s.Code, &s.StartTime, &s.EndTime, &s.Active, &endedAt, &s.EndReason); err != nil {
		return Session{}, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return s, nil
}

// CreateSession inserts a session inside a transaction that holds the course row lock, so two
// concurrent starts for one course serialize. The partial unique indexes back this up.
func (r *Repository) CreateSession(ctx context.Context, s Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr("begin create session", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, s.CourseID).Scan(&id); err != nil {
		return mapErr("lock course", err)
	}

	var active bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM sessions WHERE course_id = $1 AND active)
	`, s.CourseID).Scan(&active); err != nil {
		return mapErr("check active session", err)
	}
	if active {
		return ErrAlreadyActive
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, course_id, code, start_time, end_time, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
	`, s.ID, s.CourseID, s.Code, s.StartTime, s.EndTime); err != nil {
		return mapErr("insert session", err)
	}
	return mapErr("commit create session", tx.Commit())
}

// GetSession returns a single session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	return s, mapErr("get session", err)
}

// ActiveSession returns the active-flagged session of a course.
func (r *Repository) ActiveSession(ctx context.Context, courseID string) (Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE course_id = $1 AND active
	`, courseID))
	return s, mapErr("get active session", err)
}

// LatestSession returns the most recently started session of a course.
func (r *Repository) LatestSession(ctx context.Context, courseID string) (Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE course_id = $1
		ORDER BY start_time DESC
		LIMIT 1
	`, courseID))
	return s, mapErr("get latest session", err)
}

// DeactivateSession flips active off only if it is still on, so repeated transitions are no-ops.
func (r *Repository) DeactivateSession(ctx context.Context, id string, at time.Time, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET active = FALSE, ended_at = $2, end_reason = $3
		WHERE id = $1 AND active
	`, id, at, reason)
	if err != nil {
		return false, mapErr("deactivate session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr("deactivate session", err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := r.GetSession(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Repository) listSessions(ctx context.Context, op, query string, arg any) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		res = append(res, s)
	}
	return res, mapErr(op, rows.Err())
}

// ListSessions returns every session of a course, newest first.
func (r *Repository) ListSessions(ctx context.Context, courseID string) ([]Session, error) {
	return r.listSessions(ctx, "list sessions", `
		SELECT `+sessionColumns+` FROM sessions WHERE course_id = $1 ORDER BY start_time DESC
	`, courseID)
}

// ListDueSessions returns active sessions whose end time has passed.
func (r *Repository) ListDueSessions(ctx context.Context, now time.Time) ([]Session, error) {
	return r.listSessions(ctx, "list due sessions", `
		SELECT `+sessionColumns+` FROM sessions WHERE active AND end_time < $1
	`, now)
}

// CountSessions counts every session ever created for a course.
func (r *Repository) CountSessions(ctx context.Context, courseID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE course_id = $1`, courseID).Scan(&n)
	return n, mapErr("count sessions", err)
}

// RecordAttendance writes one mark. The insert only happens while the session is still
// active and inside its window, so a concurrent stop or expiry cannot be raced past;
// the primary key rejects duplicates.
func (r *Repository) RecordAttendance(ctx context.Context, rec Record) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (student_id, session_id, course_id, marked_at)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (
			SELECT 1 FROM sessions
			WHERE id = $2 AND course_id = $3 AND active AND end_time >= $4
		)
	`, rec.StudentID, rec.SessionID, rec.CourseID, rec.MarkedAt)
	if err != nil {
		return mapErr("record attendance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("record attendance", err)
	}
	if n == 0 {
		return ErrNoActiveSession
	}
	return nil
}

// ListSessionRecords returns the marks of a session, earliest first.
func (r *Repository) ListSessionRecords(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, session_id, course_id, marked_at
		FROM attendance_records WHERE session_id = $1
		ORDER BY marked_at
	`, sessionID)
	if err != nil {
		return nil, mapErr("list records", err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.StudentID, &rec.SessionID, &rec.CourseID, &rec.MarkedAt); err != nil {
			return nil, mapErr("list records", err)
		}
		res = append(res, rec)
	}
	return res, mapErr("list records", rows.Err())
}

// CountStudentRecords counts a student's marks in a course.
func (r *Repository) CountStudentRecords(ctx context.Context, courseID, studentID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records WHERE course_id = $1 AND student_id = $2
	`, courseID, studentID).Scan(&n)
	return n, mapErr("count records", err)
}

// CreateUser inserts a user. Ids are never reused; a taken id yields ErrAlreadyExists.
func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, role)
		VALUES ($1, $2, $3)
		RETURNING id, name, role, created_at
	`, u.ID, u.Name, u.Role)
	var out User
	if err := row.Scan(&out.ID, &out.Name, &out.Role, &out.CreatedAt); err != nil {
		return User{}, mapErr("create user", err)
	}
	return out, nil
}

// GetUser returns a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, role, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt)
	return u, mapErr("get user", err)
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, userID, token, expiresAt)
	return mapErr("save refresh token", err)
}

// ConsumeRefreshToken revokes a live token and returns its owner.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND NOT revoked AND expires_at > $2
		RETURNING user_id
	`, token, now).Scan(&userID)
	return userID, mapErr("consume refresh token", err)
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return mapErr("ping", r.db.PingContext(ctx))
}
