package stats

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lingolens-backend/internal/shared/server/middleware"
	"lingolens-backend/internal/shared/server/respond"
)

// Handler exposes stats endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches stats routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.getStats)
}

func (h *Handler) getStats(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	s, err := h.Svc.Get(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch stats", nil)
		return
	}

	resp := gin.H{
		"totalAnalyses":     s.TotalAnalyses,
		"totalWordsLearned": s.TotalWordsLearned,
		"currentStreak":     s.CurrentStreak,
		"longestStreak":     s.LongestStreak,
	}
	if s.LastActivityDate != nil {
		resp["lastActivityDate"] = s.LastActivityDate.Format(dayFormat)
	}
	respond.OK(c, resp)
}
