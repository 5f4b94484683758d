package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status is the lifecycle state of a deployment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDeploying Status = "deploying"
	StatusActive    Status = "active"
	StatusFailed    Status = "failed"
	StatusSuspended Status = "suspended"
)

// Environment is the stage a deployment is serving from.
type Environment string

const (
	EnvironmentStaging    Environment = "staging"
	EnvironmentProduction Environment = "production"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusDeploying, StatusFailed},
	StatusDeploying: {StatusActive, StatusFailed},
	StatusActive:    {StatusSuspended, StatusDeploying},
	StatusSuspended: {StatusActive, StatusDeploying},
	StatusFailed:    {StatusDeploying},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InFlight reports whether a pipeline run owns the record.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusDeploying
}

// Deployment is one provisioned instance of the application for a tenant.
type Deployment struct {
	ID             uuid.UUID                    `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID       string                       `gorm:"type:varchar(64);index;not null" json:"tenant_id" validate:"required"`
	TemplateID     string                       `gorm:"type:varchar(64);not null" json:"template_id" validate:"required"`
	AppName        string                       `gorm:"type:varchar(128);not null" json:"app_name" validate:"required"`
	Subdomain      string                       `gorm:"type:varchar(63);uniqueIndex;not null" json:"subdomain"`
	Domain         string                       `gorm:"type:varchar(255);not null" json:"domain"`
	Status         Status                       `gorm:"type:varchar(16);index;not null" json:"status" validate:"required,oneof=pending deploying active failed suspended"`
	Environment    Environment                  `gorm:"type:varchar(16);not null" json:"environment" validate:"required,oneof=staging production"`
	Version        int                          `gorm:"not null;default:0" json:"version"`
	Settings       datatypes.JSONType[Settings] `json:"settings"`
	ConfigHash     string                       `gorm:"type:varchar(64)" json:"config_hash,omitempty"`
	InfraState     datatypes.JSON               `json:"-"`
	CreatedAt      time.Time                    `json:"created_at"`
	UpdatedAt      time.Time                    `json:"updated_at"`
	DeployedAt     *time.Time                   `json:"deployed_at,omitempty"`
	LastDeployedAt *time.Time                   `json:"last_deployed_at,omitempty"`
}

// BeforeCreate assigns an id when the caller did not.
func (d *Deployment) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Config returns a copy of the configuration bundle.
func (d *Deployment) Config() Settings {
	return d.Settings.Data().Clone()
}

// SetConfig replaces the configuration bundle.
func (d *Deployment) SetConfig(s Settings) {
	d.Settings = datatypes.NewJSONType(s)
}
