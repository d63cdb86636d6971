package analyses

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lingolens-backend/internal/shared/server/middleware"
	"lingolens-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.submitAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
}

func (h *Handler) submitAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "image file is required", nil)
		return
	}
	defer file.Close()

	// Read one byte past the limit so oversized uploads are rejected rather
	// than silently truncated.
	image, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "could not read image", nil)
		return
	}

	input := SubmitInput{
		FileName:   header.Filename,
		Image:      image,
		TargetLang: c.PostForm("targetLang"),
		NativeLang: c.PostForm("nativeLang"),
		Level:      c.PostForm("level"),
	}
	if input.NativeLang == "" {
		input.NativeLang = "English"
	}
	if input.Level == "" {
		input.Level = "beginner"
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	task, err := h.Svc.Submit(ctx, userID, input)
	if err != nil {
		var active *ActiveTaskError
		var quota *QuotaError
		switch {
		case errors.As(err, &active):
			respond.Error(c, http.StatusConflict, "conflict", "An analysis is already in progress. Wait for it to finish.", gin.H{
				"taskId": active.TaskID,
			})
		case errors.As(err, &quota):
			respond.Error(c, http.StatusTooManyRequests, "limit_reached", "Daily analysis limit reached. Try again tomorrow.", gin.H{
				"used":     quota.Usage.Used,
				"limit":    quota.Usage.Limit,
				"resetsAt": quota.Usage.ResetsAt,
			})
		case errors.Is(err, ErrEmptyImage),
			errors.Is(err, ErrImageTooLarge),
			errors.Is(err, ErrUnsupportedImageType),
			errors.Is(err, ErrMissingTargetLang):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	c.Set("taskId", task.ID)
	c.Set("statusTransition", "->"+task.Status)
	respond.JSON(c, http.StatusAccepted, gin.H{
		"taskId": task.ID,
		"status": task.Status,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	taskID := c.Param("id")
	if taskID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysis id is required", nil)
		return
	}

	task, err := h.Svc.GetForUser(c.Request.Context(), userID, taskID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}

	resp := gin.H{
		"id":        task.ID,
		"status":    task.Status,
		"createdAt": task.CreatedAt,
	}
	if task.Status == StatusCompleted && task.Result != nil {
		resp["result"] = task.Result
	}
	if task.Status == StatusFailed && task.ErrorMessage != nil {
		resp["errorMessage"] = *task.ErrorMessage
	}

	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	if middleware.IsGuestFromContext(c) {
		respond.Error(c, http.StatusUnauthorized, "login_required", "Login required to view history", nil)
		return
	}

	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	tasks, err := h.Svc.ListForUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}

	resp := make([]gin.H, 0, len(tasks))
	for _, a := range tasks {
		item := gin.H{
			"id":         a.ID,
			"status":     a.Status,
			"targetLang": a.TargetLang,
			"createdAt":  a.CreatedAt,
		}
		if a.Status == StatusCompleted && a.Result != nil {
			item["description"] = a.Result.Description
			item["words"] = len(a.Result.Vocabulary)
		}
		resp = append(resp, item)
	}

	respond.JSON(c, http.StatusOK, resp)
}
