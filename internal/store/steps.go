package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mohammad-safakhou/studybuddy/models"
)

const stepColumns = `step_id, plan_id, status, result_json, created_at, updated_at`

// GetStep returns the state of a step. ok is false when absent.
func (s *Store) GetStep(ctx context.Context, stepID string) (models.StepState, bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM steps WHERE step_id=$1`, stepID)
	st, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StepState{}, false, nil
	}
	if err != nil {
		return models.StepState{}, false, err
	}
	return st, true, nil
}

// StepsForPlan returns the states recorded for a plan keyed by step id.
func (s *Store) StepsForPlan(ctx context.Context, planID int64) (map[string]models.StepState, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+stepColumns+` FROM steps WHERE plan_id=$1`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]models.StepState)
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out[st.StepID] = st
	}
	return out, rows.Err()
}

// ClaimStep moves a step to running unless it is already running. It is a
// single-statement compare-and-set; claimed is false when another request
// holds the step or the step does not exist.
func (s *Store) ClaimStep(ctx context.Context, stepID string) (bool, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
UPDATE steps SET status=$1, result_json=NULL, updated_at=CURRENT_TIMESTAMP
WHERE step_id=$2 AND status <> $3
RETURNING step_id`, string(models.StepRunning), stepID, string(models.StepRunning)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	recordStepTransition(ctx, string(models.StepRunning))
	return true, nil
}

// UpdateStepStatus sets status and result unconditionally.
func (s *Store) UpdateStepStatus(ctx context.Context, stepID string, status models.StepStatus, result []byte) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE steps SET status=$1, result_json=$2, updated_at=CURRENT_TIMESTAMP WHERE step_id=$3`,
		string(status), nullableJSON(result), stepID)
	if err != nil {
		return err
	}
	recordStepTransition(ctx, string(status))
	return nil
}

func scanStep(r rowScanner) (models.StepState, error) {
	var (
		st     models.StepState
		status string
		result []byte
	)
	if err := r.Scan(&st.StepID, &st.PlanID, &status, &result, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return models.StepState{}, err
	}
	st.Status = models.StepStatus(status)
	if len(result) > 0 {
		st.Result = result
	}
	return st, nil
}
