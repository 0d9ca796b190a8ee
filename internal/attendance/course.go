package attendance

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"
)

// CreateCourse registers a course owned by ownerID with a freshly generated join code.
func (s *Service) CreateCourse(ctx context.Context, ownerID, name string) (Course, error) {
	name = strings.TrimSpace(name)
	if ownerID == "" {
		return Course{}, invalid("owner required")
	}
	if name == "" {
		return Course{}, invalid("course name required")
	}

	var course Course
	_, err := s.codes.Generate(ctx, func(ctx context.Context, code string) error {
		course = Course{
			ID:        uuid.NewString(),
			Name:      name,
			JoinCode:  code,
			OwnerID:   ownerID,
			CreatedAt: s.now(),
		}
		return s.store.CreateCourse(ctx, course)
	})
	if err != nil {
		return Course{}, err
	}
	log.Printf("course %s created by %s (join code %s)", course.ID, ownerID, course.JoinCode)
	return course, nil
}

// DeleteCourse removes a course with its sessions, enrollments and attendance records.
func (s *Service) DeleteCourse(ctx context.Context, courseID string) error {
	if err := s.store.DeleteCourse(ctx, courseID); err != nil {
		return err
	}
	log.Printf("course %s deleted", courseID)
	return nil
}

// JoinCourse enrolls a student using a course join code. Joining twice is a no-op.
func (s *Service) JoinCourse(ctx context.Context, studentID, joinCode string) (Course, error) {
	if studentID == "" {
		return Course{}, invalid("student required")
	}
	course, err := s.store.GetCourseByJoinCode(ctx, NormalizeCode(joinCode))
	if err != nil {
		return Course{}, err
	}
	if course.OwnerID == studentID {
		return Course{}, ErrOwnerCannotEnroll
	}
	if err := s.store.Enroll(ctx, course.ID, studentID); err != nil {
		return Course{}, err
	}
	return course, nil
}

// Enroll adds a student to a course directly, enforcing that the owner never enrolls.
func (s *Service) Enroll(ctx context.Context, courseID, studentID string) error {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if course.OwnerID == studentID {
		return ErrOwnerCannotEnroll
	}
	return s.store.Enroll(ctx, courseID, studentID)
}

// CoursesOwnedBy lists an instructor's courses.
func (s *Service) CoursesOwnedBy(ctx context.Context, ownerID string) ([]Course, error) {
	return s.store.ListCoursesByOwner(ctx, ownerID)
}

// CoursesEnrolled lists the courses a student has joined.
func (s *Service) CoursesEnrolled(ctx context.Context, studentID string) ([]Course, error) {
	return s.store.ListCoursesByStudent(ctx, studentID)
}
