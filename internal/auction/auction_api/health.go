package auction_api

import (
	"context"
	"net/http"
	"time"

	"ms-auction/internal/auctionerr"
	"ms-auction/internal/utils"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// Health runs every check with a short deadline. Any failure answers 503.
func Health(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		if !healthy {
			resp := utils.ErrorResponse("unhealthy", auctionerr.New(auctionerr.InternalError, "dependency check failed"))
			resp.Data = status
			utils.WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		utils.WriteSuccess(w, http.StatusOK, "healthy", status)
	}
}
