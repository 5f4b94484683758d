package types

import "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"

type DeploymentCreateRequest struct {
	TenantID   string             `json:"tenant_id" validate:"required,max=64"`
	TemplateID string             `json:"template_id" validate:"required,max=64"`
	AppName    string             `json:"app_name,omitempty" validate:"omitempty,max=128"`
	Config     models.ConfigPatch `json:"config"`
}

type ConfigUpdateRequest struct {
	models.ConfigPatch
}
