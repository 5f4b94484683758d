package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api/types"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

// Recovery logs panics and returns 500 with a generic message.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.L().Error("panic recovered",
					zap.String("id", GetRequestID(r.Context())),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(types.APIResponse{
					Error: &types.APIError{Code: "internal", Message: http.StatusText(http.StatusInternalServerError)},
					Meta:  &types.Meta{RequestID: GetRequestID(r.Context())},
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
