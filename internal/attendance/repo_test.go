package attendance

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapErr(t *testing.T) {
	unique := func(constraint string) error {
		return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
	}
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", sql.ErrNoRows, ErrNotFound},
		{"join code taken", unique(conCourseJoinCode), ErrCodeTaken},
		{"active code taken", unique(conActiveCode), ErrCodeTaken},
		{"second active session", unique(conOneActivePerCrs), ErrAlreadyActive},
		{"duplicate record", unique(conRecordPerStudent), ErrAlreadyRecorded},
		{"duplicate user", unique(conUserPK), ErrAlreadyExists},
		{"wrapped duplicate record", fmt.Errorf("exec: %w", unique(conRecordPerStudent)), ErrAlreadyRecorded},
		{"foreign key", &pgconn.PgError{Code: "23503", ConstraintName: "sessions_course_id_fkey"}, ErrNotFound},
		{"unknown unique constraint", unique("some_other_key"), ErrStorageUnavailable},
		{"check violation", &pgconn.PgError{Code: "23514", ConstraintName: "sessions_window_check"}, ErrStorageUnavailable},
		{"connection failure", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), ErrStorageUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := mapErr("op", tc.err)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("mapErr(nil) = %v", got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapErr(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewRepository(db), mock
}

func testSession() Session {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return Session{ID: "s1", CourseID: "c1", Code: "K7QM2X", StartTime: start, EndTime: start.Add(time.Hour), Active: true}
}

func TestRepositoryCreateSession(t *testing.T) {
	lockCourse := regexp.QuoteMeta(`SELECT id FROM courses WHERE id = $1 FOR UPDATE`)
	activeExists := regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM sessions WHERE course_id = $1 AND active)`)
	s := testSession()

	t.Run("inserts under the course lock", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockCourse).WithArgs("c1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
		mock.ExpectQuery(activeExists).WithArgs("c1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(`INSERT INTO sessions`).
			WithArgs(s.ID, s.CourseID, s.Code, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := repo.CreateSession(context.Background(), s); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("rejects a second active session", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockCourse).WithArgs("c1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
		mock.ExpectQuery(activeExists).WithArgs("c1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		if err := repo.CreateSession(context.Background(), s); !errors.Is(err, ErrAlreadyActive) {
			t.Fatalf("err = %v, want ErrAlreadyActive", err)
		}
	})

	t.Run("missing course", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockCourse).WithArgs("c1").WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		if err := repo.CreateSession(context.Background(), s); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("code collision on insert", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockCourse).WithArgs("c1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
		mock.ExpectQuery(activeExists).WithArgs("c1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(`INSERT INTO sessions`).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: conActiveCode})
		mock.ExpectRollback()

		if err := repo.CreateSession(context.Background(), s); !errors.Is(err, ErrCodeTaken) {
			t.Fatalf("err = %v, want ErrCodeTaken", err)
		}
	})

	t.Run("database down", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

		if err := repo.CreateSession(context.Background(), s); !errors.Is(err, ErrStorageUnavailable) {
			t.Fatalf("err = %v, want ErrStorageUnavailable", err)
		}
	})
}

func TestRepositoryDeactivateSession(t *testing.T) {
	update := regexp.QuoteMeta(`UPDATE sessions`)
	get := regexp.QuoteMeta(`FROM sessions WHERE id = $1`)
	cols := []string{"id", "course_id", "code", "start_time", "end_time", "active", "ended_at", "end_reason"}
	s := testSession()
	at := s.StartTime.Add(10 * time.Minute)

	t.Run("first transition wins", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(update).WithArgs("s1", at, EndStopped).WillReturnResult(sqlmock.NewResult(0, 1))

		changed, err := repo.DeactivateSession(context.Background(), "s1", at, EndStopped)
		if err != nil || !changed {
			t.Fatalf("changed = %v, err = %v", changed, err)
		}
	})

	t.Run("already closed is a no-op", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(update).WithArgs("s1", at, EndExpired).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(get).WithArgs("s1").WillReturnRows(
			sqlmock.NewRows(cols).AddRow(s.ID, s.CourseID, s.Code, s.StartTime, s.EndTime, false, at, EndStopped))

		changed, err := repo.DeactivateSession(context.Background(), "s1", at, EndExpired)
		if err != nil || changed {
			t.Fatalf("changed = %v, err = %v", changed, err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec(update).WithArgs("nope", at, EndStopped).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(get).WithArgs("nope").WillReturnRows(sqlmock.NewRows(cols))

		if _, err := repo.DeactivateSession(context.Background(), "nope", at, EndStopped); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestRepositoryRecordAttendance(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT INTO attendance_records`)
	s := testSession()
	rec := Record{StudentID: "alice", SessionID: s.ID, CourseID: s.CourseID, MarkedAt: s.StartTime.Add(time.Minute)}

	tests := []struct {
		name   string
		result driver.Result
		dbErr  error
		want   error
	}{
		{"recorded", sqlmock.NewResult(0, 1), nil, nil},
		{"session closed underneath", sqlmock.NewResult(0, 0), nil, ErrNoActiveSession},
		{"duplicate", nil, &pgconn.PgError{Code: "23505", ConstraintName: conRecordPerStudent}, ErrAlreadyRecorded},
		{"database down", nil, errors.New("broken pipe"), ErrStorageUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			exp := mock.ExpectExec(insert + `.*WHERE EXISTS`).WithArgs(rec.StudentID, rec.SessionID, rec.CourseID, rec.MarkedAt)
			if tc.dbErr != nil {
				exp.WillReturnError(tc.dbErr)
			} else {
				exp.WillReturnResult(tc.result)
			}

			err := repo.RecordAttendance(context.Background(), rec)
			if tc.want == nil && err != nil {
				t.Fatalf("err = %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRepositoryCreateUser(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT INTO users`)
	u := User{ID: "u1", Name: "Ada", Role: RoleInstructor}

	t.Run("created", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery(insert).WithArgs(u.ID, u.Name, u.Role).WillReturnRows(
			sqlmock.NewRows([]string{"id", "name", "role", "created_at"}).AddRow(u.ID, u.Name, u.Role, created))

		got, err := repo.CreateUser(context.Background(), u)
		if err != nil || got.ID != u.ID || !got.CreatedAt.Equal(created) {
			t.Fatalf("user = %+v, err = %v", got, err)
		}
	})

	t.Run("id taken", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(insert).WithArgs(u.ID, u.Name, u.Role).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: conUserPK})

		if _, err := repo.CreateUser(context.Background(), u); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("err = %v, want ErrAlreadyExists", err)
		}
	})
}
