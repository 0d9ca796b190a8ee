// Package app wires configuration into the storage, queue and service graph shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"classroll/internal/attendance"
	"classroll/internal/config"
	"classroll/internal/metrics"
	"classroll/internal/queue"
	"classroll/internal/store"
)

// Runtime holds the long-lived dependencies of a process.
type Runtime struct {
	Config  config.App
	DB      *store.DB
	Redis   *store.Redis
	Queue   queue.Queue
	Store   attendance.Store
	Service *attendance.Service

	closers []func() error
}

// Open connects the configured backends. With STORE_BACKEND=memory no database is used,
// and with QUEUE_BACKEND=memory events stay in process.
func Open(ctx context.Context, cfg config.App, migrate bool) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	switch cfg.StoreBackend {
	case "memory":
		rt.Store = attendance.NewMemoryStore()
		log.Println("store: in-memory (data is lost on restart)")
	case "postgres", "":
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db connect: %w", err)
		}
		rt.DB = db
		rt.closers = append(rt.closers, db.Close)
		if migrate {
			if err := db.Migrate(ctx); err != nil {
				rt.Close()
				return nil, err
			}
		}
		rt.Store = attendance.NewRepository(db.Client)
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.QueueBackend {
	case "memory":
		rt.Queue = queue.NewInMemory(256)
	case "nats":
		nq, err := queue.NewNATSQueue(cfg.NATSURL, "classroll", "classroll-worker")
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		rt.Queue = nq
		rt.closers = append(rt.closers, func() error { nq.Close(); return nil })
	case "redis", "":
		rt.Redis = store.NewRedis(cfg.RedisAddr)
		rt.closers = append(rt.closers, rt.Redis.Close)
		rt.Queue = queue.NewRedisQueue(rt.Redis.Client, "classroll:events")
	default:
		rt.Close()
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	rt.Service = attendance.NewService(rt.Store, attendance.Options{
		DefaultDuration: cfg.SessionDefaultDuration,
		MaxDuration:     cfg.SessionMaxDuration,
		CodeLength:      cfg.CodeLength,
		CodeMaxAttempts: cfg.CodeMaxAttempts,
		QRBaseURL:       cfg.QRPayloadBaseURL,
		Events:          rt.Queue,
	})
	return rt, nil
}

// InProcessEvents reports whether nobody outside this process will drain the queue.
func (rt *Runtime) InProcessEvents() bool {
	_, ok := rt.Queue.(*queue.InMemory)
	return ok
}

// Close releases backends in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
	rt.closers = nil
}

// RunSweeper expires overdue sessions every interval until ctx is done.
func RunSweeper(ctx context.Context, svc *attendance.Service, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweepOnce(ctx, svc)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("sweep expired %d session(s)", n)
			}
		}
	}
}

// sweepOnce runs one sweep inside a span so exported traces show every pass.
func sweepOnce(ctx context.Context, svc *attendance.Service) (int, error) {
	ctx, span := otel.Tracer("classroll/app").Start(ctx, "attendance.sweep")
	defer span.End()
	n, err := svc.Sweep(ctx)
	span.SetAttributes(attribute.Int("classroll.sessions_expired", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep failed")
	}
	return n, err
}

// ConsumeEvents drains domain events, logging and counting them, until the queue closes.
func ConsumeEvents(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	for msg := range messages {
		evt, err := attendance.DecodeEvent(msg)
		if err != nil {
			log.Printf("dropping malformed %s event: %v", msg.Type, err)
			metrics.EventsConsumed.WithLabelValues("malformed").Inc()
			continue
		}
		metrics.EventsConsumed.WithLabelValues(evt.Type).Inc()
		switch evt.Type {
		case attendance.EventAttendanceRecorded:
			log.Printf("event %s: student %s in session %s of course %s", evt.Type, evt.StudentID, evt.SessionID, evt.CourseID)
		default:
			log.Printf("event %s: session %s of course %s at %s", evt.Type, evt.SessionID, evt.CourseID, evt.At.Format(time.RFC3339))
		}
	}
	return nil
}
