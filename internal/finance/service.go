// Package finance implements the budget reconciliation pipeline: the
// transaction ledger, category and project aggregation, financial status
// classification and budget alerts.
//
// Every mutation runs its whole cascade inside one database transaction so a
// committed ledger change is always reflected in the stored aggregates.
package finance

import (
	"context"
	"sync"
	"time"

	"insaat-backend/internal/logging"

	"gorm.io/gorm"
)

// FileStore persists invoice attachments.
type FileStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Delete(ctx context.Context, url string) error
}

// SummaryCache stores encoded financial summaries per project.
type SummaryCache interface {
	Get(ctx context.Context, projectID uint) ([]byte, bool, error)
	Set(ctx context.Context, projectID uint, payload []byte) error
	Invalidate(ctx context.Context, projectIDs ...uint) error
}

// AlertNotifier receives alert events after the cascade that produced them
// has committed.
type AlertNotifier interface {
	PublishAlerts(ctx context.Context, events []AlertEvent) error
}

// Service owns the database handle and the optional collaborators.
type Service struct {
	db       *gorm.DB
	files    FileStore
	cache    SummaryCache
	notifier AlertNotifier
	logger   *logging.Logger
	now      func() time.Time
	workers  int

	// summary versions, bumped on every committed mutation of a project
	versionMu sync.Mutex
	versions  map[uint]uint64
}

// Option configures a Service.
type Option func(*Service)

func WithFileStore(fs FileStore) Option {
	return func(s *Service) { s.files = fs }
}

func WithSummaryCache(c SummaryCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithAlertNotifier(n AlertNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now, used for transaction numbers and alert
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRepairWorkers bounds the number of projects repaired concurrently.
func WithRepairWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:       db,
		cache:    noopCache{},
		notifier: noopNotifier{},
		logger:   logging.Nop(),
		now:      time.Now,
		workers:  4,
		versions: map[uint]uint64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(logging.ComponentFinance)
	return s
}

// afterCommit runs the side effects of a committed mutation. Failures are
// logged and never surface to the caller.
func (s *Service) afterCommit(ctx context.Context, projectIDs []uint, events []AlertEvent) {
	if len(projectIDs) > 0 {
		s.bumpVersions(projectIDs...)
		if err := s.cache.Invalidate(ctx, projectIDs...); err != nil {
			s.logger.Warn("summary cache invalidation failed",
				logging.FieldError, err,
				logging.FieldProjectID, projectIDs)
		}
	}
	if len(events) > 0 {
		if err := s.notifier.PublishAlerts(ctx, events); err != nil {
			s.logger.Warn("alert publish failed",
				logging.FieldOperation, logging.OpPublish,
				logging.FieldError, err,
				"events", len(events))
		}
	}
}

func (s *Service) bumpVersions(projectIDs ...uint) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()
	for _, id := range projectIDs {
		s.versions[id]++
	}
}

func (s *Service) version(projectID uint) uint64 {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()
	return s.versions[projectID]
}

type noopCache struct{}

func (noopCache) Get(context.Context, uint) ([]byte, bool, error) { return nil, false, nil }
func (noopCache) Set(context.Context, uint, []byte) error         { return nil }
func (noopCache) Invalidate(context.Context, ...uint) error       { return nil }

type noopNotifier struct{}

func (noopNotifier) PublishAlerts(context.Context, []AlertEvent) error { return nil }
