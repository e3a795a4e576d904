package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/studybuddy/internal/pipeline"
	"github.com/mohammad-safakhou/studybuddy/internal/retrieval"
	"github.com/mohammad-safakhou/studybuddy/models"
)

// StudyService is the pipeline surface used by the handlers.
type StudyService interface {
	CreatePlan(ctx context.Context, goal string) (pipeline.CreatedPlan, error)
	ExecuteStep(ctx context.Context, stepID string) (pipeline.StepOutcome, error)
	ExecuteSteps(ctx context.Context, ids []string) pipeline.BulkReport
	EditPlan(ctx context.Context, req pipeline.EditRequest) (pipeline.EditedPlan, error)
	GetPlan(ctx context.Context, id int64) (models.PlanView, error)
	ListPlans(ctx context.Context) ([]models.PlanView, error)
	Logs(ctx context.Context, agent string) ([]models.InteractionLog, error)
	ResetStep(ctx context.Context, stepID string) error
	ClearAll(ctx context.Context) error
}

// StudyHandler exposes plans, step execution, logs and search under /api.
type StudyHandler struct {
	Service      StudyService
	Search       retrieval.Searcher
	TopK         int
	AdminEnabled bool
}

func (h *StudyHandler) Register(g *echo.Group) {
	g.GET("/health", health)
	g.POST("/plan", h.createPlan)
	g.POST("/execute_step", h.executeStep)
	g.POST("/execute_steps_bulk", h.executeBulk)
	g.PUT("/edit_plan", h.editPlan)
	g.GET("/plan/:id", h.getPlan)
	g.GET("/plans", h.listPlans)
	g.GET("/logs", h.logs)
	if h.Search != nil {
		g.GET("/search", h.search)
	}
	if h.AdminEnabled {
		g.DELETE("/admin/data", h.clearData)
		g.POST("/admin/reset_step", h.resetStep)
	}
}

func health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type createPlanRequest struct {
	Goal string `json:"goal"`
}

func (h *StudyHandler) createPlan(c echo.Context) error {
	var req createPlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Goal) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "goal is required")
	}
	out, err := h.Service.CreatePlan(c.Request().Context(), req.Goal)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

type executeStepRequest struct {
	StepID string `json:"step_id"`
}

func (h *StudyHandler) executeStep(c echo.Context) error {
	var req executeStepRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.StepID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "step_id is required")
	}
	out, err := h.Service.ExecuteStep(c.Request().Context(), req.StepID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

type executeBulkRequest struct {
	StepIDs []string `json:"step_ids"`
}

func (h *StudyHandler) executeBulk(c echo.Context) error {
	var req executeBulkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.StepIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "step_ids is required")
	}
	return c.JSON(http.StatusOK, h.Service.ExecuteSteps(c.Request().Context(), req.StepIDs))
}

func (h *StudyHandler) editPlan(c echo.Context) error {
	var req pipeline.EditRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PlanID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "plan_id is required")
	}
	out, err := h.Service.EditPlan(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *StudyHandler) getPlan(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid plan id")
	}
	view, err := h.Service.GetPlan(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *StudyHandler) listPlans(c echo.Context) error {
	plans, err := h.Service.ListPlans(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"plans": plans})
}

func (h *StudyHandler) logs(c echo.Context) error {
	logs, err := h.Service.Logs(c.Request().Context(), c.QueryParam("agent"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"logs": logs})
}

func (h *StudyHandler) search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	topK := h.TopK
	if raw := c.QueryParam("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "top_k must be a positive integer")
		}
		topK = n
	}
	if topK <= 0 {
		topK = 3
	}
	results, err := h.Search.Search(c.Request().Context(), q, topK)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"query": q, "results": results})
}

func (h *StudyHandler) clearData(c echo.Context) error {
	if err := h.Service.ClearAll(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *StudyHandler) resetStep(c echo.Context) error {
	var req executeStepRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.StepID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "step_id is required")
	}
	if err := h.Service.ResetStep(c.Request().Context(), req.StepID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"step_id": req.StepID, "status": string(models.StepPending)})
}
