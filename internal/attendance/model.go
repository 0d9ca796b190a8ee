package attendance

import (
	"strings"
	"time"
)

// Roles carried in auth tokens.
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
)

// Reasons a session stopped being active.
const (
	EndStopped = "stopped"
	EndExpired = "expired"
)

// Course is owned by one instructor and has a join code students use to enroll.
type Course struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	JoinCode  string    `json:"join_code"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a time-boxed attendance window for one course.
type Session struct {
	ID        string     `json:"id"`
	CourseID  string     `json:"course_id"`
	Code      string     `json:"code,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Active    bool       `json:"active"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// Due reports whether an active-flagged session has passed its end time.
func (s Session) Due(now time.Time) bool {
	return s.Active && now.After(s.EndTime)
}

// Record is one attendance mark in the ledger.
type Record struct {
	StudentID string    `json:"student_id"`
	SessionID string    `json:"session_id"`
	CourseID  string    `json:"course_id"`
	MarkedAt  time.Time `json:"marked_at"`
}

// Status is the observed state of a course's attendance window.
type Status struct {
	Session  *Session `json:"session,omitempty"`
	IsActive bool     `json:"is_active"`
}

// Ratio summarises one student's attendance in a course.
type Ratio struct {
	Attended int     `json:"attended"`
	Total    int     `json:"total"`
	Ratio    float64 `json:"ratio"`
}

// StudentRatio is a Ratio attributed to a student.
type StudentRatio struct {
	StudentID string `json:"student_id"`
	Ratio
}

// User is an authenticated principal.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidRole reports whether role is one the service understands.
func ValidRole(role string) bool {
	return role == RoleStudent || role == RoleInstructor
}

// NormalizeCode trims and upper-cases a code. Codes are compared case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newRatio(attended, total int) Ratio {
	r := Ratio{Attended: attended, Total: total}
	if total > 0 {
		r.Ratio = float64(attended) / float64(total)
	}
	return r
}
