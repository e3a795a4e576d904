// Package pipeline orchestrates planning, research and execution of study
// steps on top of the record store.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/studybuddy/internal/planner"
	"github.com/mohammad-safakhou/studybuddy/internal/store"
	"github.com/mohammad-safakhou/studybuddy/models"
)

// Store is the persistence the pipeline depends on.
type Store interface {
	CreatePlan(ctx context.Context, goal string, payload models.PlanPayload) (int64, error)
	GetPlan(ctx context.Context, id int64) (models.Plan, bool, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
	UpdatePlanPayload(ctx context.Context, id int64, payload models.PlanPayload) (bool, error)
	GetStep(ctx context.Context, stepID string) (models.StepState, bool, error)
	StepsForPlan(ctx context.Context, planID int64) (map[string]models.StepState, error)
	ClaimStep(ctx context.Context, stepID string) (bool, error)
	UpdateStepStatus(ctx context.Context, stepID string, status models.StepStatus, result []byte) error
	Logs(ctx context.Context, agent string) ([]models.InteractionLog, error)
	ClearAll(ctx context.Context) error
}

type Planner interface {
	CreatePlan(ctx context.Context, goal string) (models.PlanPayload, error)
}

type Researcher interface {
	Research(ctx context.Context, description string, tool models.Tool) (models.ResearchContext, error)
}

type Executor interface {
	Execute(ctx context.Context, step models.Step, research models.ResearchContext) (models.StepResult, error)
}

// StepEvents receives step status transitions. Optional.
type StepEvents interface {
	PublishStepTransition(ctx context.Context, stepID string, planID int64, status string) error
}

// Service is the orchestration entry point used by the HTTP, MCP and CLI surfaces.
type Service struct {
	store      Store
	planner    Planner
	researcher Researcher
	executor   Executor
	events     StepEvents
	logger     *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithStepEvents publishes every status transition to ev.
func WithStepEvents(ev StepEvents) Option {
	return func(s *Service) { s.events = ev }
}

func New(store Store, p Planner, r Researcher, e Executor, opts ...Option) *Service {
	s := &Service{
		store:      store,
		planner:    p,
		researcher: r,
		executor:   e,
		logger:     log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatedPlan is returned by CreatePlan.
type CreatedPlan struct {
	PlanID int64              `json:"plan_id"`
	Goal   string             `json:"goal"`
	Plan   models.PlanPayload `json:"plan"`
	Status string             `json:"status"`
}

// StepOutcome is returned by a successful ExecuteStep.
type StepOutcome struct {
	StepID  string                 `json:"step_id"`
	Status  models.StepStatus      `json:"status"`
	Result  models.StepResult      `json:"result"`
	Context models.ResearchContext `json:"context"`
}

// StepFailure is one failed entry of a bulk run.
type StepFailure struct {
	StepID string `json:"step_id"`
	Error  string `json:"error"`
}

// BulkReport summarises ExecuteSteps.
type BulkReport struct {
	ExecutedSteps int           `json:"executed_steps"`
	FailedSteps   int           `json:"failed_steps"`
	Results       []StepOutcome `json:"results"`
	Failures      []StepFailure `json:"failures"`
	Status        string        `json:"status"`
}

// EditRequest carries the fields of a plan edit. Empty fields are kept.
type EditRequest struct {
	PlanID      int64         `json:"plan_id"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Steps       []models.Step `json:"steps,omitempty"`
}

// EditedPlan is returned by EditPlan.
type EditedPlan struct {
	PlanID int64              `json:"plan_id"`
	Plan   models.PlanPayload `json:"plan"`
	Status string             `json:"status"`
}

// CreatePlan generates a plan for goal and persists it with one pending
// state per step.
func (s *Service) CreatePlan(ctx context.Context, goal string) (CreatedPlan, error) {
	ctx, span := otel.Tracer("studybuddy/pipeline").Start(ctx, "pipeline.create_plan")
	defer span.End()

	goal = strings.TrimSpace(goal)
	if goal == "" {
		return CreatedPlan{}, fmt.Errorf("%w: goal is required", ErrInvalidRequest)
	}
	payload, err := s.planner.CreatePlan(ctx, goal)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan")
		return CreatedPlan{}, err
	}
	id, err := s.store.CreatePlan(ctx, goal, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return CreatedPlan{}, fmt.Errorf("save plan: %w", err)
	}
	span.SetAttributes(attribute.Int64("plan_id", id), attribute.Int("steps", len(payload.Steps)))
	s.logger.Printf("created plan %d with %d steps", id, len(payload.Steps))
	for _, step := range payload.Steps {
		s.publish(ctx, step.ID, id, models.StepPending)
	}
	return CreatedPlan{PlanID: id, Goal: goal, Plan: payload, Status: "created"}, nil
}

// lookup resolves a step id to its state, plan and definition.
func (s *Service) lookup(ctx context.Context, stepID string) (models.StepState, models.Step, error) {
	state, ok, err := s.store.GetStep(ctx, stepID)
	if err != nil {
		return models.StepState{}, models.Step{}, err
	}
	if !ok {
		return models.StepState{}, models.Step{}, ErrStepNotFound
	}
	plan, ok, err := s.store.GetPlan(ctx, state.PlanID)
	if err != nil {
		return models.StepState{}, models.Step{}, err
	}
	if !ok {
		return models.StepState{}, models.Step{}, ErrPlanNotFound
	}
	def, ok := plan.Payload.FindStep(stepID)
	if !ok {
		return models.StepState{}, models.Step{}, ErrStepNotInPlan
	}
	return state, def, nil
}

// ExecuteStep runs one step. Completed and failed steps may be re-run; a
// step that is already running is rejected with ErrStepRunning.
func (s *Service) ExecuteStep(ctx context.Context, stepID string) (StepOutcome, error) {
	ctx, span := otel.Tracer("studybuddy/pipeline").Start(ctx, "pipeline.execute_step")
	defer span.End()
	span.SetAttributes(attribute.String("step_id", stepID))

	state, def, err := s.lookup(ctx, stepID)
	if err != nil {
		span.RecordError(err)
		return StepOutcome{}, err
	}
	claimed, err := s.store.ClaimStep(ctx, stepID)
	if err != nil {
		span.RecordError(err)
		return StepOutcome{}, fmt.Errorf("claim step: %w", err)
	}
	if !claimed {
		return StepOutcome{}, ErrStepRunning
	}
	s.publish(ctx, stepID, state.PlanID, models.StepRunning)
	span.SetAttributes(attribute.String("tool", string(def.Tool)))

	var research models.ResearchContext
	if def.Tool.NeedsResearch() {
		research, err = s.researcher.Research(ctx, def.Description, def.Tool)
		if err != nil {
			return StepOutcome{}, s.fail(ctx, span, state.PlanID, def, err)
		}
	}
	result, err := s.executor.Execute(ctx, def, research)
	if err != nil {
		return StepOutcome{}, s.fail(ctx, span, state.PlanID, def, err)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return StepOutcome{}, s.fail(ctx, span, state.PlanID, def, err)
	}
	// the result is stored even if the caller went away
	if err := s.store.UpdateStepStatus(context.WithoutCancel(ctx), stepID, models.StepCompleted, raw); err != nil {
		s.logger.Printf("save result of step %s: %v", stepID, err)
		// a step left running would answer 409 to every retry
		return StepOutcome{}, s.fail(ctx, span, state.PlanID, def, fmt.Errorf("save result: %w", err))
	}
	s.publish(ctx, stepID, state.PlanID, models.StepCompleted)
	recordOutcome(ctx, def.Tool, models.StepCompleted)
	return StepOutcome{StepID: stepID, Status: models.StepCompleted, Result: result, Context: research}, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, planID int64, def models.Step, cause error) error {
	stepID := def.ID
	span.RecordError(cause)
	span.SetStatus(codes.Error, "step failed")
	raw, _ := json.Marshal(models.FailureResult{Error: cause.Error()})
	if err := s.store.UpdateStepStatus(context.WithoutCancel(ctx), stepID, models.StepFailed, raw); err != nil {
		s.logger.Printf("mark step %s failed: %v", stepID, err)
	}
	s.publish(ctx, stepID, planID, models.StepFailed)
	recordOutcome(ctx, def.Tool, models.StepFailed)
	s.logger.Printf("step %s failed: %v", stepID, cause)
	return &StepFailedError{StepID: stepID, Err: cause}
}

// ResetStep puts a step back to pending and drops its result. It is the
// way out for a step stuck in running after its final write was lost.
func (s *Service) ResetStep(ctx context.Context, stepID string) error {
	state, ok, err := s.store.GetStep(ctx, stepID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStepNotFound
	}
	if err := s.store.UpdateStepStatus(ctx, stepID, models.StepPending, nil); err != nil {
		return fmt.Errorf("reset step: %w", err)
	}
	s.logger.Printf("step %s reset from %s", stepID, state.Status)
	s.publish(ctx, stepID, state.PlanID, models.StepPending)
	return nil
}

// ExecuteSteps runs ids in order. A failing id is recorded and the batch
// continues. When ctx ends, the remaining ids are recorded as failures.
func (s *Service) ExecuteSteps(ctx context.Context, ids []string) BulkReport {
	report := BulkReport{Results: []StepOutcome{}, Failures: []StepFailure{}, Status: "completed"}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, StepFailure{StepID: id, Error: err.Error()})
			continue
		}
		out, err := s.ExecuteStep(ctx, id)
		if err != nil {
			report.Failures = append(report.Failures, StepFailure{StepID: id, Error: err.Error()})
			continue
		}
		report.Results = append(report.Results, out)
	}
	report.ExecutedSteps = len(report.Results)
	report.FailedSteps = len(report.Failures)
	return report
}

// EditPlan merges the non-empty fields of req into the stored plan.
func (s *Service) EditPlan(ctx context.Context, req EditRequest) (EditedPlan, error) {
	plan, ok, err := s.store.GetPlan(ctx, req.PlanID)
	if err != nil {
		return EditedPlan{}, err
	}
	if !ok {
		return EditedPlan{}, ErrPlanNotFound
	}
	payload := plan.Payload
	if req.Title != "" {
		payload.Title = req.Title
	}
	if req.Description != "" {
		payload.Description = req.Description
	}
	if len(req.Steps) > 0 {
		steps, err := normalizeEditedSteps(req.Steps)
		if err != nil {
			return EditedPlan{}, err
		}
		payload.Steps = steps
	}
	ok, err = s.store.UpdatePlanPayload(ctx, req.PlanID, payload)
	if errors.Is(err, store.ErrStepInOtherPlan) {
		return EditedPlan{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err != nil {
		return EditedPlan{}, fmt.Errorf("save plan: %w", err)
	}
	if !ok {
		return EditedPlan{}, ErrPlanNotFound
	}
	return EditedPlan{PlanID: req.PlanID, Plan: payload, Status: "updated"}, nil
}

// normalizeEditedSteps gives id-less steps a fresh scoped id, maps tools
// onto the known set and rejects duplicate ids.
func normalizeEditedSteps(in []models.Step) ([]models.Step, error) {
	token := planner.NewToken()
	out := make([]models.Step, len(in))
	seen := make(map[string]bool, len(in))
	for i, st := range in {
		st.ID = strings.TrimSpace(st.ID)
		if st.ID == "" {
			st.ID = fmt.Sprintf("%s_step_%d", token, i+1)
		}
		if seen[st.ID] {
			return nil, fmt.Errorf("%w: duplicate step id %q", ErrInvalidRequest, st.ID)
		}
		seen[st.ID] = true
		st.Tool = models.ParseTool(string(st.Tool))
		out[i] = st
	}
	return out, nil
}

// GetPlan returns the plan with live step statuses.
func (s *Service) GetPlan(ctx context.Context, id int64) (models.PlanView, error) {
	plan, ok, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return models.PlanView{}, err
	}
	if !ok {
		return models.PlanView{}, ErrPlanNotFound
	}
	states, err := s.store.StepsForPlan(ctx, id)
	if err != nil {
		return models.PlanView{}, err
	}
	return s.view(plan, states), nil
}

func (s *Service) view(plan models.Plan, states map[string]models.StepState) models.PlanView {
	v := models.PlanView{
		ID:          plan.ID,
		Goal:        plan.Goal,
		Title:       plan.Payload.Title,
		Description: plan.Payload.Description,
		Steps:       make([]models.StepView, 0, len(plan.Payload.Steps)),
		CreatedAt:   plan.CreatedAt,
	}
	for _, def := range plan.Payload.Steps {
		sv := models.StepView{Step: def, Status: models.StepPending}
		if st, ok := states[def.ID]; ok {
			sv.Status = st.Status
			res, err := models.DecodeStepResult(st.Result)
			if err != nil {
				s.logger.Printf("plan %d step %s: %v", plan.ID, def.ID, err)
			}
			sv.Result = res
		}
		v.Steps = append(v.Steps, sv)
	}
	return v
}

// ListPlans returns all plans newest first, with live step statuses.
func (s *Service) ListPlans(ctx context.Context) ([]models.PlanView, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.PlanView, 0, len(plans))
	for _, p := range plans {
		states, err := s.store.StepsForPlan(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, s.view(p, states))
	}
	return out, nil
}

// Logs returns interaction logs newest first, optionally for one agent.
func (s *Service) Logs(ctx context.Context, agent string) ([]models.InteractionLog, error) {
	logs, err := s.store.Logs(ctx, agent)
	if logs == nil && err == nil {
		logs = []models.InteractionLog{}
	}
	return logs, err
}

// ClearAll wipes plans, step states and logs.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.ClearAll(ctx); err != nil {
		return err
	}
	s.logger.Printf("cleared all plans, steps and logs")
	return nil
}

func (s *Service) publish(ctx context.Context, stepID string, planID int64, status models.StepStatus) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishStepTransition(ctx, stepID, planID, string(status)); err != nil {
		s.logger.Printf("publish %s -> %s: %v", stepID, status, err)
	}
}

var (
	metricsOnce  sync.Once
	stepOutcomes otelmetric.Int64Counter
)

func recordOutcome(ctx context.Context, tool models.Tool, status models.StepStatus) {
	metricsOnce.Do(func() {
		var err error
		stepOutcomes, err = otel.Meter("studybuddy/pipeline").Int64Counter(
			"pipeline_step_outcomes_total",
			otelmetric.WithDescription("Executed steps by tool and final status"),
		)
		if err != nil {
			log.Printf("pipeline metrics init: pipeline_step_outcomes_total: %v", err)
		}
	})
	if stepOutcomes != nil {
		stepOutcomes.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("tool", string(tool)),
			attribute.String("status", string(status)),
		))
	}
}
