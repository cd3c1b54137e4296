// Package services implements the platform's business operations over
// the repositories, drivers, vector store, graph store and LLM
// dispatcher.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/adapters/datasource"
	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/crypto"
	"github.com/mratomo/backend-aiss-sub000/pkg/logging"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
	"github.com/mratomo/backend-aiss-sub000/pkg/repositories"
	"github.com/mratomo/backend-aiss-sub000/pkg/security"
)

// ConnectionInput is the write shape for connection registration. The
// plaintext password exists only here; it is encrypted before persisting
// and never serialized back.
type ConnectionInput struct {
	Name     string                `json:"name"`
	Type     models.ConnectionType `json:"type"`
	Host     string                `json:"host"`
	Port     int                   `json:"port"`
	Database string                `json:"database"`
	Username string                `json:"username"`
	Password string                `json:"password"`
	SSL      bool                  `json:"ssl"`
}

// ConnectionService is the connection registry.
type ConnectionService interface {
	Create(ctx context.Context, input ConnectionInput) (*models.Connection, error)
	Get(ctx context.Context, id string) (*models.Connection, error)
	List(ctx context.Context) ([]*models.Connection, error)
	Update(ctx context.Context, id string, input ConnectionInput) (*models.Connection, error)
	Delete(ctx context.Context, id string) error

	// Test pings the target and records status plus last_checked. On
	// failure it both records and returns the error, uniformly across
	// driver types.
	Test(ctx context.Context, id string) (*models.ConnectionTestResult, error)

	// ExecuteQuery screens the statement, dispatches it to the target
	// driver and returns the result with elapsed milliseconds. The
	// timeout bounds the call; zero means the configured default.
	ExecuteQuery(ctx context.Context, id, statement string, params map[string]any, timeout time.Duration) (*datasource.QueryResult, int64, error)
}

type connectionService struct {
	repo           repositories.ConnectionRepository
	cipher         *crypto.Cipher
	drivers        *datasource.Cache
	permitted      map[security.StatementClass]bool
	defaultTimeout time.Duration
	logger         *zap.Logger
}

func NewConnectionService(repo repositories.ConnectionRepository, cipher *crypto.Cipher, drivers *datasource.Cache, defaultQueryTimeout time.Duration, logger *zap.Logger) ConnectionService {
	return &connectionService{
		repo:           repo,
		cipher:         cipher,
		drivers:        drivers,
		permitted:      security.ReadOnly(),
		defaultTimeout: defaultQueryTimeout,
		logger:         logger.Named("connections"),
	}
}

func (s *connectionService) Create(ctx context.Context, input ConnectionInput) (*models.Connection, error) {
	if err := validateConnectionInput(input); err != nil {
		return nil, err
	}

	encrypted, err := s.cipher.Encrypt(input.Password)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "encrypt credentials", err)
	}

	now := time.Now().UTC()
	conn := &models.Connection{
		ID:                uuid.NewString(),
		Name:              input.Name,
		Type:              input.Type,
		Host:              input.Host,
		Port:              input.Port,
		Database:          input.Database,
		Username:          input.Username,
		EncryptedPassword: encrypted,
		SSL:               input.SSL,
		Status:            models.ConnectionStatusUnknown,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, conn); err != nil {
		return nil, err
	}
	s.logger.Info("connection registered",
		zap.String("connection_id", conn.ID),
		zap.String("type", string(conn.Type)))
	return conn, nil
}

func (s *connectionService) Get(ctx context.Context, id string) (*models.Connection, error) {
	return s.repo.Get(ctx, id)
}

func (s *connectionService) List(ctx context.Context) ([]*models.Connection, error) {
	return s.repo.List(ctx)
}

func (s *connectionService) Update(ctx context.Context, id string, input ConnectionInput) (*models.Connection, error) {
	conn, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Type != "" && input.Type != conn.Type {
		return nil, apperrors.Validation("connection type cannot change")
	}

	if input.Name != "" {
		conn.Name = input.Name
	}
	if input.Host != "" {
		conn.Host = input.Host
	}
	if input.Port != 0 {
		conn.Port = input.Port
	}
	if input.Database != "" {
		conn.Database = input.Database
	}
	if input.Username != "" {
		conn.Username = input.Username
	}
	conn.SSL = input.SSL
	if input.Password != "" {
		encrypted, err := s.cipher.Encrypt(input.Password)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "encrypt credentials", err)
		}
		conn.EncryptedPassword = encrypted
	}
	conn.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, conn); err != nil {
		return nil, err
	}
	// Endpoint or credentials may have changed; drop the pooled handle.
	s.drivers.Invalidate(ctx, id)
	return conn, nil
}

func (s *connectionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.drivers.Invalidate(ctx, id)
	return nil
}

func (s *connectionService) Test(ctx context.Context, id string) (*models.ConnectionTestResult, error) {
	conn, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	testErr := s.ping(ctx, conn)
	elapsed := time.Since(start).Milliseconds()

	status := models.ConnectionStatusActive
	result := &models.ConnectionTestResult{Status: status, ElapsedMS: elapsed}
	if testErr != nil {
		status = models.ConnectionStatusError
		result.Status = status
		result.Error = testErr.Error()
	}

	if err := s.repo.UpdateStatus(ctx, id, status, time.Now().UTC()); err != nil {
		s.logger.Warn("record connection status", zap.String("connection_id", id), zap.Error(err))
	}
	return result, testErr
}

func (s *connectionService) ping(ctx context.Context, conn *models.Connection) error {
	password, err := s.cipher.Decrypt(conn.EncryptedPassword)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "decrypt credentials", err)
	}
	driver, err := s.drivers.Get(ctx, conn, password)
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return driver.Test(pingCtx)
}

func (s *connectionService) ExecuteQuery(ctx context.Context, id, statement string, params map[string]any, timeout time.Duration) (*datasource.QueryResult, int64, error) {
	conn, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	screened, err := security.Screen(statement, params, s.permitted)
	if err != nil {
		return nil, 0, err
	}

	password, err := s.cipher.Decrypt(conn.EncryptedPassword)
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindInternal, "decrypt credentials", err)
	}
	driver, err := s.drivers.Get(ctx, conn, password)
	if err != nil {
		return nil, 0, err
	}

	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := driver.ExecuteQuery(queryCtx, screened, params)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		if errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
			return nil, elapsed, apperrors.Timeout("query execution")
		}
		s.logger.Warn("query failed",
			zap.String("connection_id", id),
			zap.String("statement", logging.SanitizeStatement(statement)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, elapsed, err
	}
	s.logger.Debug("query executed",
		zap.String("connection_id", id),
		zap.String("statement", logging.SanitizeStatement(statement)),
		zap.Int64("elapsed_ms", elapsed),
		zap.Int("rows", result.RowCount))
	return result, elapsed, nil
}

func validateConnectionInput(input ConnectionInput) error {
	switch {
	case input.Name == "":
		return apperrors.Validation("name is required")
	case input.Type == "":
		return apperrors.Validation("type is required")
	case input.Host == "":
		return apperrors.Validation("host is required")
	case input.Port <= 0 || input.Port > 65535:
		return apperrors.Validation("port must be between 1 and 65535")
	case input.Database == "":
		return apperrors.Validation("database is required")
	}
	return nil
}
