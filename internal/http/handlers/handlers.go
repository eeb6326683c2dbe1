package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/triage-ai/backend/internal/http/middleware"
	"github.com/triage-ai/backend/internal/models"
	"github.com/triage-ai/backend/internal/service"
	"github.com/triage-ai/backend/internal/storage"
)

// Pinger is satisfied by the table-backed store. Local file storage has
// nothing to ping, so the field stays nil in local mode.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Service   *service.TriageService
	Pinger    Pinger
	Validator *validator.Validate
	Logger    zerolog.Logger
	AdminKey  string
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.Pinger != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.Pinger.Ping(ctx); err != nil {
			writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ProcessRequest struct {
	SkillWeight     *float64 `json:"skill_weight" validate:"omitempty,gte=0,lte=1"`
	WorkloadWeight  *float64 `json:"workload_weight" validate:"omitempty,gte=0,lte=1"`
	AllowOverflow   bool     `json:"allow_overflow"`
	ResetWorkload   bool     `json:"reset_workload"`
	ServiceNowCount int      `json:"servicenow_count" validate:"gte=0,lte=500"`
	JiraCount       int      `json:"jira_count" validate:"gte=0,lte=500"`
}

func (r ProcessRequest) runOptions() service.RunOptions {
	return service.RunOptions{
		SkillWeight:         r.SkillWeight,
		WorkloadWeight:      r.WorkloadWeight,
		AllowOverflow:       r.AllowOverflow,
		ResetWorkload:       r.ResetWorkload,
		MockServiceNowCount: r.ServiceNowCount,
		MockJiraCount:       r.JiraCount,
	}
}

// @Summary Fetch, classify and assign tickets
// @Description Pulls tickets from the enabled sources (mock data when none
// @Description succeed), classifies them and assigns engineers. The body is
// @Description optional and tunes one run without touching the config.
// @Tags process
// @Accept json
// @Produce json
// @Param request body ProcessRequest false "run options"
// @Success 200 {object} service.RunSummary
// @Failure 400 {object} map[string]any
// @Router /api/process [post]
func (h *Handler) Process(c *gin.Context) {
	req, ok := h.bindRunOptions(c)
	if !ok {
		return
	}

	summary, err := h.Service.ProcessTickets(c.Request.Context(), req.runOptions())
	if err != nil {
		h.Logger.Error().Err(err).Msg("processing failed")
		writeError(c, http.StatusInternalServerError, "PROCESSING_ERROR", "Processing failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Reassign the latest batch
// @Description Reloads the latest saved batch, resets workload counters and
// @Description runs classification and assignment again.
// @Tags process
// @Accept json
// @Produce json
// @Param request body ProcessRequest false "run options"
// @Success 200 {object} service.RunSummary
// @Failure 404 {object} map[string]any
// @Router /api/reassign [post]
func (h *Handler) Reassign(c *gin.Context) {
	req, ok := h.bindRunOptions(c)
	if !ok {
		return
	}

	summary, err := h.Service.Reassign(c.Request.Context(), req.runOptions())
	if err != nil {
		if errors.Is(err, storage.ErrNoBatches) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No saved batches", nil)
			return
		}
		h.Logger.Error().Err(err).Msg("reassign failed")
		writeError(c, http.StatusInternalServerError, "PROCESSING_ERROR", "Reassign failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) TicketsList(c *gin.Context) {
	priority := c.Query("priority")
	category := c.Query("category")
	engineer := c.Query("engineer")

	tickets, err := h.Service.LatestBatch(c.Request.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNoBatches) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No saved batches", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to load tickets", err.Error())
		return
	}

	items := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if matchTicket(t, priority, category, engineer) {
			items = append(items, t)
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) EngineersList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.Service.Engineers()})
}

func (h *Handler) Workload(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workload": h.Service.Workload()})
}

// @Summary Analytics over the latest batch
// @Tags analytics
// @Produce json
// @Success 200 {object} service.Analytics
// @Failure 404 {object} map[string]any
// @Router /api/analytics/summary [get]
func (h *Handler) AnalyticsSummary(c *gin.Context) {
	summary, err := h.Service.Analytics(c.Request.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNoBatches) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No saved batches", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to load tickets", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Assignment diagnostics
// @Description Scores every engineer against one ticket of the latest batch.
// @Tags debug
// @Produce json
// @Param ticket query string false "Ticket number or key, defaults to the first ticket"
// @Param skill_weight query number false "Skill weight"
// @Param workload_weight query number false "Workload weight"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/diagnostics [get]
func (h *Handler) Diagnostics(c *gin.Context) {
	opts := service.RunOptions{AllowOverflow: c.Query("allow_overflow") == "true"}
	skill, ok := queryWeight(c, "skill_weight")
	if !ok {
		return
	}
	opts.SkillWeight = skill
	workload, ok := queryWeight(c, "workload_weight")
	if !ok {
		return
	}
	opts.WorkloadWeight = workload

	ticket, scores, err := h.Service.Diagnose(c.Request.Context(), strings.TrimSpace(c.Query("ticket")), opts)
	if err != nil {
		if errors.Is(err, service.ErrTicketNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
			return
		}
		if errors.Is(err, storage.ErrNoBatches) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No saved batches", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to load tickets", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket, "scores": scores})
}

func (h *Handler) ActionsList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	items, err := h.Service.RecentActions(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to load actions", err.Error())
		return
	}
	if items == nil {
		items = []models.ActionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// bindRunOptions decodes the optional JSON body shared by Process and
// Reassign. A missing body means default options.
func (h *Handler) bindRunOptions(c *gin.Context) (ProcessRequest, bool) {
	var req ProcessRequest
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return req, false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return req, false
	}
	return req, true
}

func queryWeight(c *gin.Context, name string) (*float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a number", nil)
		return nil, false
	}
	return &f, true
}

func matchTicket(t models.Ticket, priority, category, engineer string) bool {
	if priority != "" && !strings.EqualFold(t.AIPriority, priority) {
		return false
	}
	if category != "" && !strings.EqualFold(t.AICategory, category) {
		return false
	}
	if engineer != "" && !strings.EqualFold(t.AssignedEngineer, engineer) {
		return false
	}
	return true
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	body := gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	}
	if rid, ok := c.Get(middleware.RequestIDHeader); ok {
		body["request_id"] = rid
	}
	c.JSON(status, body)
}
