package attendance

import "context"

// AttendanceRatio counts a student's marks against every session the course has ever had,
// expired ones included and regardless of when the student enrolled. No sessions gives (0, 0, 0).
func (s *Service) AttendanceRatio(ctx context.Context, studentID, courseID string) (Ratio, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return Ratio{}, err
	}
	total, err := s.store.CountSessions(ctx, courseID)
	if err != nil {
		return Ratio{}, err
	}
	attended, err := s.store.CountStudentRecords(ctx, courseID, studentID)
	if err != nil {
		return Ratio{}, err
	}
	return newRatio(attended, total), nil
}

// CourseReport returns the ratio of every enrolled student.
func (s *Service) CourseReport(ctx context.Context, courseID string) ([]StudentRatio, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	total, err := s.store.CountSessions(ctx, courseID)
	if err != nil {
		return nil, err
	}
	students, err := s.store.ListEnrolled(ctx, courseID)
	if err != nil {
		return nil, err
	}
	out := make([]StudentRatio, 0, len(students))
	for _, id := range students {
		attended, err := s.store.CountStudentRecords(ctx, courseID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, StudentRatio{StudentID: id, Ratio: newRatio(attended, total)})
	}
	return out, nil
}

// SessionRoster lists the attendance marks of one session in the order they were made.
func (s *Service) SessionRoster(ctx context.Context, sessionID string) ([]Record, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListSessionRecords(ctx, sessionID)
}
