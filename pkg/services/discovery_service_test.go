package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/adapters/datasource"
	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/crypto"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

func snapshotWithTables(n, columns int) *datasource.SchemaSnapshot {
	tables := make([]models.Table, n)
	for i := range tables {
		cols := make([]models.Column, columns)
		for j := range cols {
			cols[j] = models.Column{Name: "col", DataType: "text"}
		}
		tables[i] = models.Table{SchemaName: "public", Name: "t", Columns: cols}
	}
	return &datasource.SchemaSnapshot{DatabaseName: "db", Tables: tables}
}

func TestBuildSchemaAppliesTableCap(t *testing.T) {
	conn := &models.Connection{ID: "c1", Type: models.ConnectionTypePostgreSQL}
	schema, warnings := buildSchema(conn, snapshotWithTables(models.MaxTablesPerSchema+20, 1))

	assert.Len(t, schema.Tables, models.MaxTablesPerSchema)
	require.NotEmpty(t, warnings)
	assert.Equal(t, "tables", warnings[0].Kind)
	assert.Equal(t, models.SchemaStatusCompleted, schema.Status)
	require.NotNil(t, schema.DiscoveryDate)
}

func TestBuildSchemaAppliesColumnCap(t *testing.T) {
	conn := &models.Connection{ID: "c1"}
	schema, warnings := buildSchema(conn, snapshotWithTables(1, models.MaxColumnsPerTable+5))

	assert.Len(t, schema.Tables[0].Columns, models.MaxColumnsPerTable)
	require.NotEmpty(t, warnings)
	assert.Equal(t, "columns", warnings[0].Kind)
}

func TestCapIdentifierTruncatesWithMarker(t *testing.T) {
	long := strings.Repeat("x", models.MaxIdentifierLength+50)
	got, warnings := capIdentifier("table", long)

	assert.Len(t, got, models.MaxIdentifierLength)
	assert.True(t, strings.HasSuffix(got, "..."))
	require.Len(t, warnings, 1)
	assert.Equal(t, long, warnings[0].Original)

	short := "orders"
	got, warnings = capIdentifier("table", short)
	assert.Equal(t, short, got)
	assert.Empty(t, warnings)
}

// flakyDriver fails GetSchema a configured number of times before
// returning a snapshot. failures < 0 means it never recovers; a nil
// blockUntilDeadline snapshot call returns immediately.
type flakyDriver struct {
	mu                 sync.Mutex
	failures           int
	err                error
	calls              int
	blockUntilDeadline bool
}

func (d *flakyDriver) Test(ctx context.Context) error { return nil }

func (d *flakyDriver) ExecuteQuery(ctx context.Context, statement string, params map[string]any) (*datasource.QueryResult, error) {
	return nil, nil
}

func (d *flakyDriver) GetSchema(ctx context.Context, opts models.DiscoveryOptions) (*datasource.SchemaSnapshot, error) {
	d.mu.Lock()
	d.calls++
	failing := d.failures != 0
	if d.failures > 0 {
		d.failures--
	}
	d.mu.Unlock()

	if d.blockUntilDeadline {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failing {
		return nil, d.err
	}
	return &datasource.SchemaSnapshot{
		DatabaseName: "shop",
		Tables:       []models.Table{{SchemaName: "public", Name: "orders"}},
	}, nil
}

func (d *flakyDriver) Close(ctx context.Context) error { return nil }

func (d *flakyDriver) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

const flakyType models.ConnectionType = "flaky"

var registerFlaky sync.Once

var currentFlakyDriver *flakyDriver

func useFlakyDriver(d *flakyDriver) {
	registerFlaky.Do(func() {
		datasource.Register(flakyType, func(ctx context.Context, conn *models.Connection, password string, _ *zap.Logger) (datasource.Driver, error) {
			return currentFlakyDriver, nil
		})
	})
	currentFlakyDriver = d
}

func newTestDiscoveryService(t *testing.T, schemas *fakeSchemaRepo) (*discoveryService, *models.Connection) {
	t.Helper()
	cipher, err := crypto.NewCipher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	encrypted, err := cipher.Encrypt("secret")
	require.NoError(t, err)

	conns := newFakeConnectionRepo()
	conn := &models.Connection{
		ID:                "c1",
		Name:              "shop",
		Type:              flakyType,
		Host:              "db.local",
		Port:              5432,
		Database:          "shop",
		Username:          "app",
		EncryptedPassword: encrypted,
	}
	require.NoError(t, conns.Create(context.Background(), conn))

	svc := NewDiscoveryService(conns, schemas, cipher, datasource.NewCache(testLogger()),
		nil, nil, 50*time.Millisecond, testLogger()).(*discoveryService)
	svc.backoffUnit = time.Millisecond
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, conn
}

func waitTerminal(t *testing.T, s *discoveryService, jobID string) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.JobStatus(jobID)
		require.NoError(t, err)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestDiscoveryRecoversAfterTransientFailures(t *testing.T) {
	useFlakyDriver(&flakyDriver{
		failures: 2,
		err:      apperrors.New(apperrors.KindUpstream, "connection reset"),
	})
	schemas := newFakeSchemaRepo()
	svc, conn := newTestDiscoveryService(t, schemas)

	job, err := svc.StartDiscovery(context.Background(), conn.ID, models.DiscoveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAccepted, job.Status)

	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 2, final.RetryCount)
	assert.Equal(t, 3, currentFlakyDriver.callCount())

	stored, err := schemas.GetByConnection(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SchemaStatusCompleted, stored.Status)
	require.Len(t, stored.Tables, 1)
	assert.Equal(t, "orders", stored.Tables[0].Name)
}

func TestDiscoveryExhaustsRetriesAndFails(t *testing.T) {
	useFlakyDriver(&flakyDriver{
		failures: -1,
		err:      apperrors.New(apperrors.KindUpstream, "connection refused"),
	})
	schemas := newFakeSchemaRepo()
	svc, conn := newTestDiscoveryService(t, schemas)

	job, err := svc.StartDiscovery(context.Background(), conn.ID, models.DiscoveryOptions{})
	require.NoError(t, err)

	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	// One initial attempt plus the full retry allowance.
	assert.Equal(t, maxDiscoveryRetries, final.RetryCount)
	assert.Equal(t, maxDiscoveryRetries+1, currentFlakyDriver.callCount())
	assert.NotEmpty(t, final.Error)

	stored, err := schemas.GetByConnection(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SchemaStatusFailed, stored.Status)
}

func TestDiscoveryDoesNotRetryPermanentFailures(t *testing.T) {
	useFlakyDriver(&flakyDriver{
		failures: -1,
		err:      apperrors.New(apperrors.KindValidation, "syntax error near select"),
	})
	schemas := newFakeSchemaRepo()
	svc, conn := newTestDiscoveryService(t, schemas)

	job, err := svc.StartDiscovery(context.Background(), conn.ID, models.DiscoveryOptions{})
	require.NoError(t, err)

	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Equal(t, 0, final.RetryCount)
	assert.Equal(t, 1, currentFlakyDriver.callCount())
}

func TestDiscoveryTimesOutWhenExtractionHangs(t *testing.T) {
	useFlakyDriver(&flakyDriver{blockUntilDeadline: true})
	schemas := newFakeSchemaRepo()
	svc, conn := newTestDiscoveryService(t, schemas)
	svc.grace = 10 * time.Millisecond

	job, err := svc.StartDiscovery(context.Background(), conn.ID, models.DiscoveryOptions{})
	require.NoError(t, err)

	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, models.JobStatusTimeout, final.Status)
	assert.Equal(t, maxDiscoveryRetries, final.RetryCount)
}

func TestStartDiscoveryReturnsDetachedSnapshot(t *testing.T) {
	useFlakyDriver(&flakyDriver{failures: 0})
	schemas := newFakeSchemaRepo()
	svc, conn := newTestDiscoveryService(t, schemas)

	job, err := svc.StartDiscovery(context.Background(), conn.ID, models.DiscoveryOptions{})
	require.NoError(t, err)

	// Writes to the returned snapshot must never reach the tracked job.
	job.Error = "scribbled"
	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Empty(t, final.Error)
}

func finishedJob(started time.Time, execution time.Duration, retries int) *models.Job {
	finished := started.Add(execution)
	return &models.Job{
		ID:         "j1",
		Status:     models.JobStatusCompleted,
		StartedAt:  started,
		FinishedAt: &finished,
		RetryCount: retries,
	}
}

func TestRetentionWindows(t *testing.T) {
	start := time.Now().UTC()

	assert.Equal(t, retentionDefault, retention(finishedJob(start, time.Minute, 0)))
	assert.Equal(t, retentionLongRun, retention(finishedJob(start, 6*time.Minute, 0)))
	assert.Equal(t, retentionWithRetry, retention(finishedJob(start, time.Minute, 2)))
	// Retries dominate even for long runs.
	assert.Equal(t, retentionWithRetry, retention(finishedJob(start, 10*time.Minute, 1)))
}

func TestSweepRemovesExpiredTerminalJobs(t *testing.T) {
	s := &discoveryService{jobs: map[string]*models.Job{}, logger: testLogger()}

	start := time.Now().UTC().Add(-2 * time.Hour)
	expired := finishedJob(start, time.Minute, 0)
	expired.ID = "expired"
	fresh := finishedJob(time.Now().UTC(), time.Minute, 0)
	fresh.ID = "fresh"
	running := &models.Job{ID: "running", Status: models.JobStatusInProgress, StartedAt: start}

	s.jobs[expired.ID] = expired
	s.jobs[fresh.ID] = fresh
	s.jobs[running.ID] = running

	s.sweep(time.Now().UTC())

	_, err := s.JobStatus("expired")
	assert.Error(t, err)
	_, err = s.JobStatus("fresh")
	assert.NoError(t, err)
	_, err = s.JobStatus("running")
	assert.NoError(t, err)
}

func TestJobStatusUnknownJob(t *testing.T) {
	s := &discoveryService{jobs: map[string]*models.Job{}, logger: testLogger()}
	_, err := s.JobStatus("nope")
	require.Error(t, err)
}

func TestJobStatusReturnsSnapshot(t *testing.T) {
	s := &discoveryService{jobs: map[string]*models.Job{}, logger: testLogger()}
	s.jobs["j1"] = &models.Job{ID: "j1", Status: models.JobStatusAccepted}

	snap, err := s.JobStatus("j1")
	require.NoError(t, err)

	// Mutating the snapshot must not reach the shared map.
	snap.Status = models.JobStatusFailed
	again, err := s.JobStatus("j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAccepted, again.Status)
}
