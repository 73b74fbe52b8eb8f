// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"pdjudge/internal/svc"
)

type healthResponse struct {
	Status    string   `json:"status"`
	Queue     string   `json:"queue"`
	Languages []string `json:"languages"`
}

// HealthHandler reports worker liveness and broker reachability.
func HealthHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Queue: "ok"}
		for _, spec := range svcCtx.Registry.All() {
			resp.Languages = append(resp.Languages, spec.ID)
		}
		code := http.StatusOK
		if err := svcCtx.Queue.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Queue = err.Error()
			code = http.StatusServiceUnavailable
		}
		httpx.WriteJsonCtx(r.Context(), w, code, resp)
	}
}
