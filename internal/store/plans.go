package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/studybuddy/models"
)

// CreatePlan inserts the plan and one pending state per step in a single
// transaction and returns the new plan id.
func (s *Store) CreatePlan(ctx context.Context, goal string, payload models.PlanPayload) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal plan: %w", err)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO plans (goal, plan_json) VALUES ($1,$2) RETURNING id`,
		goal, string(raw)).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert plan: %w", err)
	}
	for _, step := range payload.Steps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO steps (step_id, plan_id, status) VALUES ($1,$2,$3)`,
			step.ID, id, string(models.StepPending)); err != nil {
			return 0, fmt.Errorf("insert step %s: %w", step.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	recordPlanCreated(ctx)
	return id, nil
}

// GetPlan returns the plan with the given id. ok is false when absent.
func (s *Store) GetPlan(ctx context.Context, id int64) (models.Plan, bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, goal, plan_json, created_at FROM plans WHERE id=$1`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Plan{}, false, nil
	}
	if err != nil {
		return models.Plan{}, false, err
	}
	return p, true, nil
}

// ListPlans returns every plan, newest first.
func (s *Store) ListPlans(ctx context.Context) ([]models.Plan, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, goal, plan_json, created_at FROM plans ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ErrStepInOtherPlan is returned when an edited plan names a step id that
// already belongs to another plan.
var ErrStepInOtherPlan = errors.New("step id belongs to another plan")

// UpdatePlanPayload replaces the stored payload and adds a pending state
// for every step id that has none. Existing step states are untouched. A
// step id owned by another plan rolls the whole update back with
// ErrStepInOtherPlan.
func (s *Store) UpdatePlanPayload(ctx context.Context, id int64, payload models.PlanPayload) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal plan: %w", err)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE plans SET plan_json=$1 WHERE id=$2`, string(raw), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	for _, step := range payload.Steps {
		var owner int64
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO steps (step_id, plan_id, status) VALUES ($1,$2,$3)
ON CONFLICT (step_id) DO UPDATE SET plan_id=steps.plan_id RETURNING plan_id`,
			step.ID, id, string(models.StepPending)).Scan(&owner); err != nil {
			return false, fmt.Errorf("insert step %s: %w", step.ID, err)
		}
		if owner != id {
			return false, fmt.Errorf("%w: %s is in plan %d", ErrStepInOtherPlan, step.ID, owner)
		}
	}
	return true, tx.Commit()
}

// ClearAll deletes every plan, step state and interaction log.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, table := range []string{"steps", "plans", "logs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(r rowScanner) (models.Plan, error) {
	var (
		p   models.Plan
		raw []byte
	)
	if err := r.Scan(&p.ID, &p.Goal, &raw, &p.CreatedAt); err != nil {
		return models.Plan{}, err
	}
	if err := json.Unmarshal(raw, &p.Payload); err != nil {
		return models.Plan{}, fmt.Errorf("decode plan %d: %w", p.ID, err)
	}
	return p, nil
}
