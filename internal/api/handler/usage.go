package handler

import (
	"errors"
	"net/http"
	"time"

	mw "github.com/SimbaBuilds/sheetassist/internal/api/middleware"
	"github.com/SimbaBuilds/sheetassist/internal/api/response"
	"github.com/SimbaBuilds/sheetassist/internal/store"
	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

// NewUsageHandler returns the handler for GET /api/v1/usage. Users with no
// recorded activity get zero counters rather than a 404.
func NewUsageHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		usage, err := st.GetUsage(r.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			usage = &models.UsageCounters{UserID: userID, UpdatedAt: time.Now().UTC()}
		} else if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read usage", nil)
			return
		}

		response.JSON(w, usage)
	}
}
