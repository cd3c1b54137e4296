package services

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/adapters/datasource"
	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/crypto"
	"github.com/mratomo/backend-aiss-sub000/pkg/metrics"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
	"github.com/mratomo/backend-aiss-sub000/pkg/retry"
)

const (
	maxDiscoveryRetries = 3

	// timeoutGrace is added to the configured discovery timeout before a
	// run is declared timed out.
	timeoutGrace = 120 * time.Second

	// Retention windows for terminal jobs. Long runs are evicted sooner;
	// retried runs are kept longer for inspection.
	retentionDefault   = 3600 * time.Second
	retentionLongRun   = 600 * time.Second
	retentionWithRetry = 7200 * time.Second
	longRunThreshold   = 300 * time.Second

	janitorInterval = 60 * time.Second
)

// DiscoveryService orchestrates schema discovery jobs: extraction through
// the connection's driver, graph projection and vectorization, strictly
// in that order per job.
type DiscoveryService interface {
	// GetSchema returns the persisted schema for a connection. When none
	// exists it persists a pending placeholder, enqueues a discovery job
	// and returns the placeholder without blocking.
	GetSchema(ctx context.Context, connectionID string) (*models.Schema, error)

	// StartDiscovery registers a job and spawns the background run,
	// returning the accepted job snapshot immediately.
	StartDiscovery(ctx context.Context, connectionID string, opts models.DiscoveryOptions) (*models.Job, error)

	// JobStatus returns the in-memory job snapshot. Jobs past their
	// retention window are NotFound.
	JobStatus(jobID string) (*models.Job, error)

	// Shutdown stops the janitor and waits for in-flight jobs up to the
	// context deadline; jobs still running after that are marked failed.
	Shutdown(ctx context.Context) error
}

// Projector is the slice of graph projection the orchestrator needs.
type Projector interface {
	Project(ctx context.Context, schema *models.Schema) error
}

type discoveryService struct {
	connections repositories.ConnectionRepository
	schemas     repositories.SchemaRepository
	cipher      *crypto.Cipher
	drivers     *datasource.Cache
	projector   Projector
	vectorizer  VectorizerService
	timeout     time.Duration
	grace       time.Duration
	backoffUnit time.Duration
	logger      *zap.Logger

	mu   sync.Mutex
	jobs map[string]*models.Job

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
}

func NewDiscoveryService(
	connections repositories.ConnectionRepository,
	schemas repositories.SchemaRepository,
	cipher *crypto.Cipher,
	drivers *datasource.Cache,
	projector Projector,
	vectorizer VectorizerService,
	discoveryTimeout time.Duration,
	logger *zap.Logger,
) DiscoveryService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &discoveryService{
		connections: connections,
		schemas:     schemas,
		cipher:      cipher,
		drivers:     drivers,
		projector:   projector,
		vectorizer:  vectorizer,
		timeout:     discoveryTimeout,
		grace:       timeoutGrace,
		backoffUnit: time.Second,
		logger:      logger.Named("discovery"),
		jobs:        map[string]*models.Job{},
		baseCtx:     ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *discoveryService) GetSchema(ctx context.Context, connectionID string) (*models.Schema, error) {
	schema, err := s.schemas.GetByConnection(ctx, connectionID)
	if err == nil {
		return schema, nil
	}
	if !apperrors.Is(err, apperrors.KindNotFound) {
		return nil, err
	}

	conn, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	placeholder := &models.Schema{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Name:         conn.Database,
		DBType:       string(conn.Type),
		Status:       models.SchemaStatusPending,
		Tables:       []models.Table{},
	}
	if err := s.schemas.Upsert(ctx, placeholder); err != nil {
		return nil, err
	}
	if _, err := s.StartDiscovery(ctx, connectionID, models.DiscoveryOptions{}); err != nil {
		s.logger.Warn("enqueue discovery for placeholder",
			zap.String("connection_id", connectionID), zap.Error(err))
	}
	return placeholder, nil
}

func (s *discoveryService) StartDiscovery(ctx context.Context, connectionID string, opts models.DiscoveryOptions) (*models.Job, error) {
	conn, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:                  uuid.NewString(),
		ConnectionID:        connectionID,
		Status:              models.JobStatusAccepted,
		StartedAt:           now,
		EstimatedCompletion: now.Add(s.timeout),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	metrics.JobsActive.Set(float64(len(s.jobs)))
	// Snapshot while still holding the lock: once run starts it mutates
	// the stored job concurrently.
	snapshot := job.Clone()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(job.ID, conn, opts)

	s.logger.Info("discovery job accepted",
		zap.String("job_id", job.ID),
		zap.String("connection_id", connectionID))
	return snapshot, nil
}

func (s *discoveryService) JobStatus(jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, apperrors.NotFound("job", jobID)
	}
	return job.Clone(), nil
}

// run drives one job through the state machine. Extraction, projection
// and vectorization are strictly serial within the job.
func (s *discoveryService) run(jobID string, conn *models.Connection, opts models.DiscoveryOptions) {
	defer s.wg.Done()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	s.update(jobID, func(j *models.Job) {
		j.Status = models.JobStatusInProgress
		j.InitialMemoryBytes = memStats.HeapAlloc
	})

	var snapshot *datasource.SchemaSnapshot
	var lastErr error
	timedOut := false
	retryCount := 0

	for {
		snapshot, lastErr, timedOut = s.extract(conn, opts)
		if lastErr == nil {
			break
		}
		transient := timedOut || retry.IsTransient(lastErr)
		if !transient || retryCount >= maxDiscoveryRetries || s.baseCtx.Err() != nil {
			break
		}
		wait := time.Duration(1<<uint(retryCount)) * s.backoffUnit
		retryCount++
		s.update(jobID, func(j *models.Job) {
			j.Status = models.JobStatusRetrying
			j.RetryCount = retryCount
		})
		s.logger.Warn("discovery retrying",
			zap.String("job_id", jobID),
			zap.String("connection_id", conn.ID),
			zap.Int("retry", retryCount),
			zap.Duration("wait", wait),
			zap.Error(lastErr))
		select {
		case <-time.After(wait):
		case <-s.baseCtx.Done():
		}
		if s.baseCtx.Err() != nil {
			break
		}
		s.update(jobID, func(j *models.Job) { j.Status = models.JobStatusInProgress })
	}

	if s.baseCtx.Err() != nil && lastErr != nil {
		s.finish(jobID, models.JobStatusFailed, "shutdown")
		return
	}

	if lastErr != nil {
		status := models.JobStatusFailed
		if timedOut {
			status = models.JobStatusTimeout
		}
		s.persistFailure(conn, lastErr)
		s.finish(jobID, status, lastErr.Error())
		return
	}

	schema, warnings := buildSchema(conn, snapshot)
	for _, w := range warnings {
		s.logger.Warn("discovery cap applied",
			zap.String("connection_id", conn.ID),
			zap.String("kind", w.Kind),
			zap.String("original", w.Original),
			zap.String("truncated", w.Truncated))
	}

	persistCtx, cancel := context.WithTimeout(s.baseCtx, 30*time.Second)
	err := s.schemas.Upsert(persistCtx, schema)
	cancel()
	if err != nil {
		s.finish(jobID, models.JobStatusFailed, err.Error())
		return
	}

	if s.projector != nil {
		projCtx, cancel := context.WithTimeout(s.baseCtx, s.timeout)
		if err := s.projector.Project(projCtx, schema); err != nil {
			s.logger.Warn("graph projection failed",
				zap.String("connection_id", conn.ID), zap.Error(err))
		}
		cancel()
	}

	if s.vectorizer != nil {
		s.update(jobID, func(j *models.Job) { j.Status = models.JobStatusVectorizing })
		vecCtx, cancel := context.WithTimeout(s.baseCtx, s.timeout+s.grace)
		if _, err := s.vectorizer.VectorizeSchema(vecCtx, schema); err != nil {
			// Best effort: the schema stays completed, the error is
			// already recorded on it.
			s.logger.Warn("schema vectorization failed",
				zap.String("connection_id", conn.ID), zap.Error(err))
		}
		cancel()
	}

	s.finish(jobID, models.JobStatusCompleted, "")
	s.logger.Info("discovery completed",
		zap.String("job_id", jobID),
		zap.String("connection_id", conn.ID),
		zap.Int("tables", len(schema.Tables)))
}

// extract runs one bounded extraction attempt.
func (s *discoveryService) extract(conn *models.Connection, opts models.DiscoveryOptions) (*datasource.SchemaSnapshot, error, bool) {
	password, err := s.cipher.Decrypt(conn.EncryptedPassword)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "decrypt credentials", err), false
	}

	attemptCtx, cancel := context.WithTimeout(s.baseCtx, s.timeout+s.grace)
	defer cancel()

	driver, err := s.drivers.Get(attemptCtx, conn, password)
	if err != nil {
		return nil, err, errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
	}
	snapshot, err := driver.GetSchema(attemptCtx, opts)
	if err != nil {
		return nil, err, errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
	}
	return snapshot, nil, false
}

func (s *discoveryService) persistFailure(conn *models.Connection, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	schema := &models.Schema{
		ID:           uuid.NewString(),
		ConnectionID: conn.ID,
		Name:         conn.Database,
		DBType:       string(conn.Type),
		Status:       models.SchemaStatusFailed,
		Error:        cause.Error(),
		Tables:       []models.Table{},
	}
	if err := s.schemas.Upsert(ctx, schema); err != nil {
		s.logger.Warn("persist failed schema",
			zap.String("connection_id", conn.ID), zap.Error(err))
	}
}

func (s *discoveryService) update(jobID string, fn func(*models.Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		fn(job)
	}
}

func (s *discoveryService) finish(jobID string, status models.JobStatus, errText string) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	now := time.Now().UTC()
	s.update(jobID, func(j *models.Job) {
		j.Status = status
		j.FinishedAt = &now
		j.FinalMemoryBytes = memStats.HeapAlloc
		j.Error = errText
	})
	metrics.DiscoveryRuns.WithLabelValues(string(status)).Inc()
}

// retention returns how long a terminal job stays observable.
func retention(job *models.Job) time.Duration {
	if job.RetryCount > 0 {
		return retentionWithRetry
	}
	if job.FinishedAt != nil && job.FinishedAt.Sub(job.StartedAt) > longRunThreshold {
		return retentionLongRun
	}
	return retentionDefault
}

// janitor evicts terminal jobs past retention. It copies candidate ids
// under the lock, releases, then removes under a second acquisition.
func (s *discoveryService) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now().UTC())
		case <-s.done:
			return
		}
	}
}

func (s *discoveryService) sweep(now time.Time) {
	s.mu.Lock()
	var expired []string
	for id, job := range s.jobs {
		if !job.Status.Terminal() || job.FinishedAt == nil {
			continue
		}
		if now.Sub(*job.FinishedAt) >= retention(job) {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range expired {
		delete(s.jobs, id)
	}
	metrics.JobsActive.Set(float64(len(s.jobs)))
	s.mu.Unlock()
	s.logger.Debug("janitor removed jobs", zap.Int("count", len(expired)))
}

func (s *discoveryService) Shutdown(ctx context.Context) error {
	s.cancel()
	close(s.done)

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}

	// Anything still non-terminal did not survive the drain.
	now := time.Now().UTC()
	s.mu.Lock()
	for _, job := range s.jobs {
		if !job.Status.Terminal() {
			job.Status = models.JobStatusFailed
			job.FinishedAt = &now
			job.Error = "shutdown"
		}
	}
	s.mu.Unlock()
	return ctx.Err()
}

// capWarning records one enforcement of the extraction caps.
type capWarning struct {
	Kind      string
	Original  string
	Truncated string
}

// buildSchema converts a driver snapshot into the persisted schema shape,
// enforcing the table, column and identifier caps.
func buildSchema(conn *models.Connection, snapshot *datasource.SchemaSnapshot) (*models.Schema, []capWarning) {
	var warnings []capWarning
	now := time.Now().UTC()

	tables := snapshot.Tables
	if len(tables) > models.MaxTablesPerSchema {
		warnings = append(warnings, capWarning{
			Kind:      "tables",
			Original:  strconv.Itoa(len(tables)),
			Truncated: strconv.Itoa(models.MaxTablesPerSchema),
		})
		tables = tables[:models.MaxTablesPerSchema]
	}

	out := make([]models.Table, 0, len(tables))
	for _, t := range tables {
		name, w := capIdentifier("table", t.Name)
		warnings = append(warnings, w...)

		columns := t.Columns
		if len(columns) > models.MaxColumnsPerTable {
			warnings = append(warnings, capWarning{
				Kind:      "columns",
				Original:  t.Name + ":" + strconv.Itoa(len(columns)),
				Truncated: strconv.Itoa(models.MaxColumnsPerTable),
			})
			columns = columns[:models.MaxColumnsPerTable]
		}
		cols := make([]models.Column, 0, len(columns))
		for _, c := range columns {
			colName, w := capIdentifier("column", c.Name)
			warnings = append(warnings, w...)
			c.Name = colName
			cols = append(cols, c)
		}
		out = append(out, models.Table{
			SchemaName:  t.SchemaName,
			Name:        name,
			RowCount:    t.RowCount,
			Description: t.Description,
			Columns:     cols,
		})
	}

	return &models.Schema{
		ID:            uuid.NewString(),
		ConnectionID:  conn.ID,
		Name:          snapshot.DatabaseName,
		DBType:        string(conn.Type),
		Version:       snapshot.Version,
		Status:        models.SchemaStatusCompleted,
		DiscoveryDate: &now,
		Tables:        out,
	}, warnings
}

// capIdentifier truncates identifiers over the cap, leaving a trailing
// marker inside the limit.
func capIdentifier(kind, name string) (string, []capWarning) {
	if len(name) <= models.MaxIdentifierLength {
		return name, nil
	}
	truncated := name[:models.MaxIdentifierLength-3] + "..."
	return truncated, []capWarning{{Kind: kind, Original: name, Truncated: truncated}}
}
