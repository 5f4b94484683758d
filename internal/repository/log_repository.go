package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	appErr "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/errors"
	"gorm.io/gorm"
)

const maxAppendAttempts = 16

// LogRepository is the append-only deployment audit trail.
type LogRepository interface {
	// Append stores an entry stamped with the next sequence number and a
	// timestamp no earlier than the previous entry's.
	Append(ctx context.Context, deploymentID uuid.UUID, level models.LogLevel, message string, details map[string]any) (*models.DeploymentLog, error)
	// ListByDeployment returns newest first.
	ListByDeployment(ctx context.Context, deploymentID uuid.UUID) ([]models.DeploymentLog, error)
}

type logRepository struct {
	base BaseRepository[models.DeploymentLog]
	db   *gorm.DB
	now  func() time.Time
}

var _ LogRepository = (*logRepository)(nil)

func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepository{
		base: NewBaseRepository[models.DeploymentLog](db, nil),
		db:   db,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *logRepository) Append(ctx context.Context, deploymentID uuid.UUID, level models.LogLevel, message string, details map[string]any) (*models.DeploymentLog, error) {
	if deploymentID == uuid.Nil {
		return nil, appErr.New(appErr.CodeInvalid, "log entry has no deployment")
	}
	entry := &models.DeploymentLog{
		DeploymentID: deploymentID,
		Level:        level,
		Message:      message,
		Details:      details,
	}
	var err error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var last models.DeploymentLog
			q := tx.Select("seq", "timestamp").
				Where("deployment_id = ?", entry.DeploymentID).
				Order("seq DESC").Limit(1).Find(&last)
			if q.Error != nil {
				return q.Error
			}
			ts := r.now()
			if q.RowsAffected > 0 && ts.Before(last.Timestamp) {
				ts = last.Timestamp
			}
			entry.ID = uuid.Nil
			entry.Seq = last.Seq + 1
			entry.Timestamp = ts
			return tx.Create(entry).Error
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "append deployment log failed")
	}
	return entry, nil
}

// ForDeployment scopes a log query to one deployment.
func ForDeployment(id uuid.UUID) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where("deployment_id = ?", id) }
}

// LatestEntriesFirst orders logs by timestamp, then sequence, descending.
func LatestEntriesFirst(db *gorm.DB) *gorm.DB {
	return db.Order("timestamp DESC").Order("seq DESC")
}

func (r *logRepository) ListByDeployment(ctx context.Context, deploymentID uuid.UUID) ([]models.DeploymentLog, error) {
	out := []models.DeploymentLog{}
	if err := r.base.Find(ctx, &out, ForDeployment(deploymentID), LatestEntriesFirst); err != nil {
		return nil, err
	}
	return out, nil
}
