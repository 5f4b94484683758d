package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LogLevel is the severity of an audit entry.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// DeploymentLog is one append-only audit entry for a deployment.
// Seq orders entries written within the same clock tick.
type DeploymentLog struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	DeploymentID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_deployment_logs_seq,priority:1" json:"deployment_id"`
	Seq          int64             `gorm:"not null;uniqueIndex:idx_deployment_logs_seq,priority:2" json:"seq"`
	Timestamp    time.Time         `gorm:"not null;index" json:"timestamp"`
	Level        LogLevel          `gorm:"type:varchar(16);not null" json:"level" validate:"required,oneof=info warning error"`
	Message      string            `gorm:"type:text;not null" json:"message"`
	Details      datatypes.JSONMap `json:"details,omitempty"`
}

// BeforeCreate assigns an id when the caller did not.
func (l *DeploymentLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Stage returns details.stage, if present.
func (l DeploymentLog) Stage() string {
	if l.Details == nil {
		return ""
	}
	s, _ := l.Details["stage"].(string)
	return s
}
