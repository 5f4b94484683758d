package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api/middleware"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api/types"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/services"
)

type DeploymentsHandler struct{ svc services.DeploymentService }

func NewDeploymentsHandler(svc services.DeploymentService) *DeploymentsHandler {
	return &DeploymentsHandler{svc: svc}
}

func (h *DeploymentsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.GetDeployments(r.Context(), r.URL.Query().Get("tenant_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    items,
		Meta:    &types.Meta{RequestID: middleware.GetRequestID(r.Context()), Total: int64(len(items))},
	})
}

// Create answers 202: the record exists and is pending, the pipeline has
// not finished.
func (h *DeploymentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.DeploymentCreateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.svc.CreateDeployment(r.Context(), services.CreateDeploymentInput{
		TenantID:   req.TenantID,
		TemplateID: req.TemplateID,
		AppName:    req.AppName,
		Config:     req.Config,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/deployments/"+d.ID.String())
	writeData(w, r, http.StatusAccepted, d)
}

func (h *DeploymentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := deploymentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.svc.GetDeployment(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, d)
}

func (h *DeploymentsHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	id, err := deploymentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.ConfigUpdateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if req.RequiresRedeploy() {
		status = http.StatusAccepted
	}
	h.respondAfter(w, r, id, status, func(ctx context.Context) error {
		return h.svc.UpdateDeploymentConfig(ctx, id, req.ConfigPatch)
	})
}

func (h *DeploymentsHandler) Redeploy(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, http.StatusAccepted, h.svc.RedeployApp)
}

func (h *DeploymentsHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, http.StatusOK, h.svc.SuspendDeployment)
}

func (h *DeploymentsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, http.StatusOK, h.svc.ActivateDeployment)
}

func (h *DeploymentsHandler) lifecycle(w http.ResponseWriter, r *http.Request, status int, op func(context.Context, uuid.UUID) error) {
	id, err := deploymentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondAfter(w, r, id, status, func(ctx context.Context) error { return op(ctx, id) })
}

// respondAfter runs op and replies with the deployment as it now stands.
func (h *DeploymentsHandler) respondAfter(w http.ResponseWriter, r *http.Request, id uuid.UUID, status int, op func(context.Context) error) {
	if err := op(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.svc.GetDeployment(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, status, d)
}

func (h *DeploymentsHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id, err := deploymentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.svc.GetDeploymentLogs(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    entries,
		Meta:    &types.Meta{RequestID: middleware.GetRequestID(r.Context()), Total: int64(len(entries))},
	})
}

func (h *DeploymentsHandler) Health(w http.ResponseWriter, r *http.Request) {
	id, err := deploymentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.CheckDeploymentHealth(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}
