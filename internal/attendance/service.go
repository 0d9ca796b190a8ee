package attendance

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultSessionDuration = time.Hour
	DefaultMaxDuration     = 12 * time.Hour
)

// Options tune a Service. Zero values select defaults.
type Options struct {
	DefaultDuration time.Duration
	MaxDuration     time.Duration
	CodeLength      int
	CodeMaxAttempts int
	// QRBaseURL prefixes QR payloads; when empty the payload is the bare code.
	QRBaseURL string
	Events    Publisher
	Now       func() time.Time
}

// Service implements course management, the session lifecycle, attendance verification and reporting.
type Service struct {
	store           Store
	codes           *CodeGenerator
	events          Publisher
	now             func() time.Time
	defaultDuration time.Duration
	maxDuration     time.Duration
	qrBaseURL       string
}

// NewService creates a service backed by store.
func NewService(store Store, opts Options) *Service {
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultSessionDuration
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:           store,
		codes:           NewCodeGenerator(opts.CodeLength, opts.CodeMaxAttempts),
		events:          opts.Events,
		now:             opts.Now,
		defaultDuration: opts.DefaultDuration,
		maxDuration:     opts.MaxDuration,
		qrBaseURL:       opts.QRBaseURL,
	}
}

// Store exposes the underlying store for callers that need raw reads (health, CLI).
func (s *Service) Store() Store { return s.store }

// MaxDuration is the longest session StartSession accepts.
func (s *Service) MaxDuration() time.Duration { return s.maxDuration }

// GetCourse returns a course or ErrNotFound.
func (s *Service) GetCourse(ctx context.Context, courseID string) (Course, error) {
	return s.store.GetCourse(ctx, courseID)
}

// GetSession returns a session or ErrNotFound.
func (s *Service) GetSession(ctx context.Context, sessionID string) (Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
