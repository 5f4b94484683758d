package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	appErr "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/errors"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxSubdomainAttempts = 8

// MutateFunc edits a locked deployment in place. Returning an error aborts
// the mutation and leaves the stored record untouched.
type MutateFunc func(d *models.Deployment) error

// DeploymentRepository is the deployment registry.
type DeploymentRepository interface {
	// Create persists d as pending. A subdomain is generated when d has
	// none; the domain is always derived from it.
	Create(ctx context.Context, d *models.Deployment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deployment, error)
	// ListByTenant returns newest first. An empty tenant lists everything.
	ListByTenant(ctx context.Context, tenantID string) ([]models.Deployment, error)
	// ListByStatus returns oldest first.
	ListByStatus(ctx context.Context, statuses ...models.Status) ([]models.Deployment, error)
	// Mutate applies fn to the current record under a row lock and writes
	// the mutable columns back atomically.
	Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.Deployment, error)
	SaveInfraState(ctx context.Context, id uuid.UUID, state []byte) error
	GetInfraState(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// DeploymentOption configures a deployment repository.
type DeploymentOption func(*deploymentRepository)

// WithSubdomainGenerator overrides the random subdomain source.
func WithSubdomainGenerator(g SubdomainGenerator) DeploymentOption {
	return func(r *deploymentRepository) { r.subdomains = g }
}

// WithBaseDomain sets the zone deployments are published under.
func WithBaseDomain(domain string) DeploymentOption {
	return func(r *deploymentRepository) { r.baseDomain = domain }
}

type deploymentRepository struct {
	base       BaseRepository[models.Deployment]
	db         *gorm.DB
	subdomains SubdomainGenerator
	baseDomain string
}

var _ DeploymentRepository = (*deploymentRepository)(nil)

func NewDeploymentRepository(db *gorm.DB, opts ...DeploymentOption) DeploymentRepository {
	r := &deploymentRepository{
		base: NewBaseRepository[models.Deployment](db, func(id any) error {
			return appErr.DeploymentNotFound(fmt.Sprint(id))
		}),
		db:         db,
		subdomains: RandomSubdomain,
		baseDomain: "apps.ikon.systems",
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *deploymentRepository) hostname(sub string) string {
	if r.baseDomain == "" {
		return sub
	}
	return sub + "." + r.baseDomain
}

func (r *deploymentRepository) Create(ctx context.Context, d *models.Deployment) error {
	d.Status = models.StatusPending
	if d.Environment == "" {
		d.Environment = models.EnvironmentStaging
	}

	attempts := maxSubdomainAttempts
	requested := d.Subdomain
	if requested != "" {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		candidate := requested
		if candidate == "" {
			candidate = r.subdomains()
		}
		d.Subdomain = candidate
		d.Domain = r.hostname(candidate)

		err := r.base.Create(ctx, d)
		if err == nil {
			return nil
		}
		if !appErr.IsCode(err, appErr.CodeAlreadyExists) {
			return err
		}
		logger.L().Debug("subdomain collision",
			zap.String("subdomain", candidate), zap.Int("attempt", attempt))
		// the failed insert may have left a generated id behind
		d.ID = uuid.Nil
	}
	return appErr.New(appErr.CodeConflict, "could not allocate a unique subdomain").
		WithMeta("attempts", attempts)
}

func (r *deploymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	var d models.Deployment
	if err := r.base.GetByID(ctx, id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ForTenant scopes a deployment query to one tenant. Empty matches all.
func ForTenant(tenantID string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == "" {
			return db
		}
		return db.Where("tenant_id = ?", tenantID)
	}
}

// NewestFirst orders by creation time, then id for a stable tie-break.
func NewestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

func (r *deploymentRepository) ListByTenant(ctx context.Context, tenantID string) ([]models.Deployment, error) {
	out := []models.Deployment{}
	if err := r.base.Find(ctx, &out, ForTenant(tenantID), NewestFirst); err != nil {
		return nil, err
	}
	return out, nil
}

// WithStatus scopes a deployment query to any of statuses.
func WithStatus(statuses ...models.Status) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status IN ?", statuses)
	}
}

func (r *deploymentRepository) ListByStatus(ctx context.Context, statuses ...models.Status) ([]models.Deployment, error) {
	out := []models.Deployment{}
	if len(statuses) == 0 {
		return out, nil
	}
	oldestFirst := func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }
	if err := r.base.Find(ctx, &out, WithStatus(statuses...), oldestFirst); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *deploymentRepository) Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.Deployment, error) {
	var d models.Deployment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
			First(&d, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErr.DeploymentNotFound(id.String())
			}
			return appErr.Wrap(err, appErr.CodeInternal, "load deployment failed")
		}
		if err := fn(&d); err != nil {
			return err
		}
		d.UpdatedAt = time.Now().UTC()
		// identity columns and infra state are never written here
		return tx.Model(&models.Deployment{}).Where("id = ?", id).Updates(map[string]any{
			"app_name":         d.AppName,
			"status":           d.Status,
			"environment":      d.Environment,
			"version":          d.Version,
			"settings":         d.Settings,
			"config_hash":      d.ConfigHash,
			"deployed_at":      d.DeployedAt,
			"last_deployed_at": d.LastDeployedAt,
			"updated_at":       d.UpdatedAt,
		}).Error
	})
	if err != nil {
		var ae *appErr.AppError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, appErr.Wrap(err, appErr.CodeInternal, "update deployment failed")
	}
	return &d, nil
}

func (r *deploymentRepository) SaveInfraState(ctx context.Context, id uuid.UUID, state []byte) error {
	res := r.db.WithContext(ctx).Model(&models.Deployment{}).Where("id = ?", id).
		UpdateColumn("infra_state", datatypes.JSON(state))
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "save infrastructure state failed")
	}
	if res.RowsAffected == 0 {
		return appErr.DeploymentNotFound(id.String())
	}
	return nil
}

func (r *deploymentRepository) GetInfraState(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var d models.Deployment
	err := r.db.WithContext(ctx).Select("id", "infra_state").First(&d, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.DeploymentNotFound(id.String())
		}
		return nil, appErr.Wrap(err, appErr.CodeInternal, "load infrastructure state failed")
	}
	return []byte(d.InfraState), nil
}
