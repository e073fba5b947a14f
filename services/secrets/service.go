package secrets

import (
	"context"
	"time"

	"github.com/upb/mcp-auth-gateway/internal/observability"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/repositories"
	"github.com/upb/mcp-auth-gateway/services"
	"go.uber.org/zap"
)

// Store is the secret store surface the token issuer, authenticator and
// Privy client depend on
type Store interface {
	Get(ctx context.Context, name string, tenant *string) (string, bool, error)
	Set(ctx context.Context, name, value string, tenant, description *string) (bool, error)
	Delete(ctx context.Context, name string, tenant *string) (bool, error)
	List(ctx context.Context, tenant *string) ([]models.Secret, error)
}

// Service encrypts values on the way into a SecretRepository and decrypts
// them on the way out
type Service struct {
	repo    repositories.SecretRepository
	cipher  *Cipher
	timeout time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewService creates a new secrets service. A zero timeout disables the per-call deadline.
func NewService(repo repositories.SecretRepository, cipher *Cipher, timeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		cipher:  cipher,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Get returns the plaintext for (name, tenant). A value that cannot be
// decrypted is reported as absent.
func (s *Service) Get(ctx context.Context, name string, tenant *string) (string, bool, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	record, err := s.repo.FindByName(ctx, name, tenant)
	s.metrics.StoreOperation("get", err, time.Since(start))
	if err != nil {
		s.logger.Error("secret lookup failed",
			zap.String("name", name),
			zap.Error(err))
		return "", false, services.WrapStore("failed to read secret", err)
	}
	if record == nil {
		return "", false, nil
	}

	value, err := s.cipher.Decrypt(name, record.Value)
	if err != nil {
		s.logger.Warn("secret value unavailable",
			zap.String("name", name),
			zap.String("creator_id", models.StringValue(tenant)),
			zap.Error(err))
		return "", false, nil
	}
	return value, true, nil
}

// Set stores value under (name, tenant), updating the record in place when
// it already exists. The lookup and the write are separate store calls, so
// concurrent writers of one name resolve last-writer-wins.
func (s *Service) Set(ctx context.Context, name, value string, tenant, description *string) (bool, error) {
	if name == "" {
		return false, services.NewDomainError(services.ErrorTypeValidation, "secret name is required", nil)
	}

	ciphertext, err := s.cipher.Encrypt(name, value)
	if err != nil {
		return false, services.WrapInternal("failed to encrypt secret", err)
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	existing, err := s.repo.FindByName(ctx, name, tenant)
	if err != nil {
		s.metrics.StoreOperation("set", err, time.Since(start))
		s.logger.Error("secret lookup before write failed", zap.String("name", name), zap.Error(err))
		return false, services.WrapStore("failed to write secret", err)
	}

	if existing != nil {
		_, err = s.repo.Update(ctx, existing.ID, ciphertext, description)
	} else {
		_, err = s.repo.Insert(ctx, &models.Secret{
			Name:        name,
			Value:       ciphertext,
			CreatorID:   tenant,
			Description: description,
		})
	}
	s.metrics.StoreOperation("set", err, time.Since(start))
	if err != nil {
		s.logger.Error("secret write failed",
			zap.String("name", name),
			zap.Bool("update", existing != nil),
			zap.Error(err))
		return false, services.WrapStore("failed to write secret", err)
	}

	s.logger.Debug("secret stored",
		zap.String("name", name),
		zap.String("creator_id", models.StringValue(tenant)),
		zap.Bool("update", existing != nil))
	return true, nil
}

// Delete removes (name, tenant). Deleting a missing name succeeds.
func (s *Service) Delete(ctx context.Context, name string, tenant *string) (bool, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	err := s.repo.DeleteByName(ctx, name, tenant)
	s.metrics.StoreOperation("delete", err, time.Since(start))
	if err != nil {
		s.logger.Error("secret delete failed", zap.String("name", name), zap.Error(err))
		return false, services.WrapStore("failed to delete secret", err)
	}
	return true, nil
}

// List returns decrypted records for tenant, or every record when tenant is nil.
// Records that fail to decrypt are skipped.
func (s *Service) List(ctx context.Context, tenant *string) ([]models.Secret, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	records, err := s.repo.List(ctx, tenant)
	s.metrics.StoreOperation("list", err, time.Since(start))
	if err != nil {
		s.logger.Error("secret list failed", zap.Error(err))
		return nil, services.WrapStore("failed to list secrets", err)
	}

	out := make([]models.Secret, 0, len(records))
	for _, record := range records {
		value, err := s.cipher.Decrypt(record.Name, record.Value)
		if err != nil {
			s.logger.Warn("skipping undecryptable secret",
				zap.String("name", record.Name),
				zap.String("creator_id", models.StringValue(record.CreatorID)))
			continue
		}
		secret := *record
		secret.Value = value
		out = append(out, secret)
	}
	return out, nil
}

// Ping checks the backing store is reachable
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		return services.WrapStore(services.ErrStoreUnavailable.Message, err)
	}
	return nil
}
