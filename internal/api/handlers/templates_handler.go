package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api/middleware"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api/types"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/services"
)

type TemplatesHandler struct{ svc services.DeploymentService }

func NewTemplatesHandler(svc services.DeploymentService) *TemplatesHandler {
	return &TemplatesHandler{svc: svc}
}

func (h *TemplatesHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.svc.GetDeploymentTemplates(r.Context())
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    items,
		Meta:    &types.Meta{RequestID: middleware.GetRequestID(r.Context()), Total: int64(len(items))},
	})
}

func (h *TemplatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.svc.GetDeploymentTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, tpl)
}
