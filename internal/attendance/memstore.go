package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

type recordKey struct {
	student, session string
}

type refreshToken struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

// MemoryStore keeps everything in maps behind one mutex. It backs tests and STORE_BACKEND=memory.
type MemoryStore struct {
	mu       sync.Mutex
	courses  map[string]Course
	enrolled map[string]map[string]bool // course -> students
	sessions map[string]Session
	records  map[recordKey]Record
	users    map[string]User
	tokens   map[string]refreshToken
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:  make(map[string]Course),
		enrolled: make(map[string]map[string]bool),
		sessions: make(map[string]Session),
		records:  make(map[recordKey]Record),
		users:    make(map[string]User),
		tokens:   make(map[string]refreshToken),
	}
}

func (m *MemoryStore) CreateCourse(_ context.Context, c Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.courses {
		if existing.JoinCode == c.JoinCode {
			return ErrCodeTaken
		}
	}
	m.courses[c.ID] = c
	m.enrolled[c.ID] = make(map[string]bool)
	return nil
}

func (m *MemoryStore) GetCourse(_ context.Context, id string) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) GetCourseByJoinCode(_ context.Context, joinCode string) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses {
		if c.JoinCode == joinCode {
			return c, nil
		}
	}
	return Course{}, ErrNotFound
}

func (m *MemoryStore) DeleteCourse(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[id]; !ok {
		return ErrNotFound
	}
	delete(m.courses, id)
	delete(m.enrolled, id)
	for sid, s := range m.sessions {
		if s.CourseID == id {
			delete(m.sessions, sid)
		}
	}
	for k, r := range m.records {
		if r.CourseID == id {
			delete(m.records, k)
		}
	}
	return nil
}

func (m *MemoryStore) ListCoursesByOwner(_ context.Context, ownerID string) ([]Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Course
	for _, c := range m.courses {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sortCourses(out)
	return out, nil
}

func (m *MemoryStore) ListCoursesByStudent(_ context.Context, studentID string) ([]Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Course
	for id, students := range m.enrolled {
		if students[studentID] {
			out = append(out, m.courses[id])
		}
	}
	sortCourses(out)
	return out, nil
}

func (m *MemoryStore) Enroll(_ context.Context, courseID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	students, ok := m.enrolled[courseID]
	if !ok {
		return ErrNotFound
	}
	students[studentID] = true
	return nil
}

func (m *MemoryStore) IsEnrolled(_ context.Context, courseID, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enrolled[courseID][studentID], nil
}

func (m *MemoryStore) ListEnrolled(_ context.Context, courseID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.enrolled[courseID]))
	for id := range m.enrolled[courseID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[s.CourseID]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.sessions {
		if !existing.Active {
			continue
		}
		if existing.CourseID == s.CourseID {
			return ErrAlreadyActive
		}
		if existing.Code == s.Code {
			return ErrCodeTaken
		}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) ActiveSession(_ context.Context, courseID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.CourseID == courseID && s.Active {
			return s, nil
		}
	}
	return Session{}, ErrNotFound
}

func (m *MemoryStore) LatestSession(_ context.Context, courseID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		latest Session
		found  bool
	)
	for _, s := range m.sessions {
		if s.CourseID != courseID {
			continue
		}
		if !found || s.StartTime.After(latest.StartTime) {
			latest, found = s, true
		}
	}
	if !found {
		return Session{}, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) DeactivateSession(_ context.Context, id string, at time.Time, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if !s.Active {
		return false, nil
	}
	s.Active = false
	s.EndedAt = &at
	s.EndReason = reason
	m.sessions[id] = s
	return true, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, courseID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.CourseID == courseID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (m *MemoryStore) ListDueSessions(_ context.Context, now time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.Due(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) CountSessions(_ context.Context, courseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) RecordAttendance(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[r.SessionID]
	if !ok {
		return ErrNotFound
	}
	if !sess.Active || sess.CourseID != r.CourseID || r.MarkedAt.After(sess.EndTime) {
		return ErrNoActiveSession
	}
	key := recordKey{student: r.StudentID, session: r.SessionID}
	if _, exists := m.records[key]; exists {
		return ErrAlreadyRecorded
	}
	m.records[key] = r
	return nil
}

func (m *MemoryStore) ListSessionRecords(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarkedAt.Before(out[j].MarkedAt) })
	return out, nil
}

func (m *MemoryStore) CountStudentRecords(_ context.Context, courseID, studentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.CourseID == courseID && r.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return User{}, ErrAlreadyExists
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) SaveRefreshToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = refreshToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) ConsumeRefreshToken(_ context.Context, token string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok || t.revoked || now.After(t.expiresAt) {
		return "", ErrNotFound
	}
	t.revoked = true
	m.tokens[token] = t
	return t.userID, nil
}

func sortCourses(cs []Course) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].CreatedAt.Before(cs[j].CreatedAt) })
}
