// Package service orchestrates conjunction screening and CDM ingestion on
// top of the catalog and event store.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/conjunct/internal/adapters/inbox"
	"github.com/okian/conjunct/internal/adapters/mq/queue"
	"github.com/okian/conjunct/internal/adapters/mq/worker"
	"github.com/okian/conjunct/internal/adapters/repository"
	"github.com/okian/conjunct/internal/domain/conjunction"
	"github.com/okian/conjunct/internal/domain/dedupe"
	"github.com/okian/conjunct/internal/domain/frames"
	"github.com/okian/conjunct/internal/domain/lifecycle"
	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/internal/domain/risk"
	"github.com/okian/conjunct/pkg/logger"
	"github.com/okian/conjunct/pkg/metrics"
)

const (
	defaultHorizonDays    = 14
	maxHorizonDays        = 14
	defaultVolumeKm       = 10.0
	defaultAltitudeWindow = 200.0
	prefilterFactor       = 20.0
	rotationCacheSize     = 4096
	drainTimeout          = 30 * time.Second
	ingestTimeout         = time.Minute
)

// Service implements screening and CDM attachment for the daemon and the
// ops API.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	converter *frames.Converter
	solver    *conjunction.Solver
	engine    *risk.Engine
	deduper   dedupe.Deduper
	notifier  Notifier
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	watcher   *inbox.Watcher

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	horizonDays      int
	volumeKm         float64
	altitudeWindowKm float64
	matchWindow      time.Duration
	concurrency      int
	thresholds       risk.Thresholds
	inboxDir         string
	inboxExtensions  []string
	orbitRetention   time.Duration
	tleRetention     time.Duration

	// satLocks serializes passes and CDM attachments per satellite.
	satLocks sync.Map

	started bool
	now     func() time.Time
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of CDM ingestion workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the CDM queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many CDM digests are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithHorizonDays sets the default screening horizon.
func WithHorizonDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.horizonDays = clampHorizon(days)
		}
	}
}

// WithScreeningVolume sets the screening volume radius in km.
func WithScreeningVolume(km float64) Option {
	return func(s *Service) {
		if km > 0 {
			s.volumeKm = km
		}
	}
}

// WithAltitudeWindow sets the altitude prefilter half-width in km.
func WithAltitudeWindow(km float64) Option {
	return func(s *Service) {
		if km > 0 {
			s.altitudeWindowKm = km
		}
	}
}

// WithMatchWindow sets how far apart two TCAs may be for the same event.
func WithMatchWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.matchWindow = d
		}
	}
}

// WithConcurrency bounds how many satellites ScreenAll screens at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithThresholds sets the risk engine thresholds.
func WithThresholds(t risk.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = t
	}
}

// WithInbox enables the CDM drop directory.
func WithInbox(dir string, extensions ...string) Option {
	return func(s *Service) {
		s.inboxDir = dir
		s.inboxExtensions = extensions
	}
}

// WithRetention sets how long orbit states and TLE records are kept.
func WithRetention(orbitStates, tleRecords time.Duration) Option {
	return func(s *Service) {
		s.orbitRetention = orbitStates
		s.tleRetention = tleRecords
	}
}

// WithNotifier sets where change records are sent.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service over store. Screening and attachment work
// immediately; the CDM queue, workers and inbox run after Start.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:            store,
		workerCount:      2,
		queueSize:        1000,
		dedupeSize:       10_000,
		horizonDays:      defaultHorizonDays,
		volumeKm:         defaultVolumeKm,
		altitudeWindowKm: defaultAltitudeWindow,
		matchWindow:      lifecycle.DefaultMatchWindow,
		concurrency:      4,
		thresholds:       risk.DefaultThresholds(),
		orbitRetention:   30 * 24 * time.Hour,
		tleRetention:     90 * 24 * time.Hour,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.logger.Named("changes"))
	}

	s.converter = frames.NewConverter(frames.WithCache(frames.NewRotationCache(rotationCacheSize)))
	s.solver = conjunction.NewSolver(s.converter)
	s.engine = risk.NewEngine(s.thresholds)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))

	return s
}

// Start brings up the CDM queue, the worker pool and, when configured, the
// inbox watcher.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting conjunction service...")

	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithRejectHook(func(j queue.Job, reason string) {
			s.logger.Warn(ctx, "cdm job rejected",
				logger.String("origin", j.Origin), logger.String("reason", reason))
		}),
	)
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithLogger(s.logger.Named("worker")),
		worker.WithJobTimeout(ingestTimeout),
	)
	s.pool.Start(ctx)

	if s.inboxDir != "" {
		w, err := inbox.New(s.inboxDir, s.queue,
			inbox.WithExtensions(s.inboxExtensions...),
			inbox.WithLogger(s.logger.Named("inbox")),
		)
		if err == nil {
			if err = w.Start(ctx); err != nil {
				_ = w.Stop()
			}
		}
		if err != nil {
			s.pool.Stop()
			_ = s.queue.Close()
			return fmt.Errorf("start cdm inbox: %w", err)
		}
		s.watcher = w
	}

	s.started = true
	s.logger.Info(ctx, "conjunction service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("inbox", s.inboxDir),
	)
	return nil
}

// Stop stops the inbox, drains queued CDMs and stops the workers.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping conjunction service...")

	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn(ctx, "error stopping inbox", logger.Error(err))
		}
		s.watcher = nil
	}

	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	if err := s.pool.Shutdown(drainCtx); err != nil {
		s.logger.Warn(ctx, "cdm workers did not drain", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "conjunction service stopped")
}

// Enqueue queues a CDM for asynchronous ingestion. It returns false when
// the service is stopped or the queue is full.
func (s *Service) Enqueue(ctx context.Context, job model.CdmJob) bool { //nolint:gocritic // hugeParam: job is passed by value into the queue
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false
	}
	if job.ID == "" {
		job.ID = dedupe.Digest(job.Raw)
	}
	if job.ReceivedAt.IsZero() {
		job.ReceivedAt = s.now()
	}
	return s.queue.Enqueue(ctx, job)
}

// Ready reports whether the ingest pipeline is running.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Stats is a snapshot for the ops API.
type Stats struct {
	Started      bool             `json:"started"`
	Workers      int              `json:"workers"`
	BusyWorkers  int              `json:"busy_workers"`
	QueueLength  int              `json:"queue_length"`
	QueueSize    int              `json:"queue_size"`
	DedupeSize   int64            `json:"dedupe_size"`
	HorizonDays  int              `json:"horizon_days"`
	VolumeKm     float64          `json:"screening_volume_km"`
	ActiveEvents int              `json:"active_events"`
	Store        repository.Stats `json:"store"`
	CollectedAt  time.Time        `json:"collected_at"`
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:     s.started,
		Workers:     s.workerCount,
		QueueSize:   s.queueSize,
		DedupeSize:  s.deduper.Size(),
		HorizonDays: s.horizonDays,
		VolumeKm:    s.volumeKm,
		Store:       s.store.Stats(ctx),
		CollectedAt: s.now().UTC(),
	}
	for _, n := range st.Store.ActiveEvents {
		st.ActiveEvents += n
	}
	if s.started {
		st.Workers = s.pool.Size()
		st.BusyWorkers = s.pool.Busy()
		st.QueueLength = s.queue.Len(ctx)
		metrics.UpdateQueueSize(st.QueueLength)
	}
	return st
}

// Cleanup drops orbit states and TLE records older than the retention
// periods.
func (s *Service) Cleanup(ctx context.Context) (repository.CleanupResult, error) {
	now := s.now().UTC()
	var orbitBefore, tleBefore time.Time
	if s.orbitRetention > 0 {
		orbitBefore = now.Add(-s.orbitRetention)
	}
	if s.tleRetention > 0 {
		tleBefore = now.Add(-s.tleRetention)
	}
	res, err := s.store.Cleanup(ctx, orbitBefore, tleBefore)
	if err != nil {
		metrics.RecordErrorByComponent("service", "cleanup")
		return res, fmt.Errorf("retention cleanup: %w", err)
	}
	s.logger.Info(ctx, "retention cleanup done",
		logger.Int("orbit_states", res.OrbitStates),
		logger.Int("tle_records", res.TleRecords),
	)
	return res, nil
}

// lockSatellite serializes work on one satellite's events.
func (s *Service) lockSatellite(id string) func() {
	v, _ := s.satLocks.LoadOrStore(id, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *Service) commit(ctx context.Context, b repository.Batch) error {
	if b.Empty() {
		return nil
	}
	if err := s.store.Apply(ctx, b); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, changes []model.Change) {
	if len(changes) == 0 {
		return
	}
	for _, c := range changes {
		metrics.RecordChange(c.Source, c.RiskTierTo)
	}
	s.notifier.Notify(ctx, changes)
}

func clampHorizon(days int) int {
	if days <= 0 {
		return defaultHorizonDays
	}
	return max(1, min(maxHorizonDays, days))
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
