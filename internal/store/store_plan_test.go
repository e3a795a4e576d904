package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/studybuddy/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db, Driver: DriverPostgres}, mock
}

func TestCreatePlanInsertsPendingSteps(t *testing.T) {
	st, mock := newMockStore(t)
	payload := models.PlanPayload{
		Title: "Learn Go",
		Steps: []models.Step{
			{ID: "step_1_ab12cd34", Title: "Basics", Tool: models.ToolLLM},
			{ID: "step_2_ab12cd34", Title: "Quiz", Tool: models.ToolQuiz},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO plans (goal, plan_json) VALUES ($1,$2) RETURNING id`)).
		WithArgs("learn go", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	for _, s := range payload.Steps {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO steps (step_id, plan_id, status) VALUES ($1,$2,$3)`)).
			WithArgs(s.ID, int64(7), "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	id, err := st.CreatePlan(context.Background(), "learn go", payload)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreatePlanRollsBackOnStepFailure(t *testing.T) {
	st, mock := newMockStore(t)
	payload := models.PlanPayload{Steps: []models.Step{{ID: "step_1_x"}}}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO plans`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO steps`)).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	if _, err := st.CreatePlan(context.Background(), "g", payload); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetPlan(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, goal, plan_json, created_at FROM plans WHERE id=$1`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "goal", "plan_json", "created_at"}).
			AddRow(int64(3), "graphs", []byte(`{"title":"Graphs","description":"d","steps":[{"id":"step_1_a","title":"BFS","description":"","tool":"RAG","expected_output":""}]}`), now))

	p, ok, err := st.GetPlan(context.Background(), 3)
	if err != nil || !ok {
		t.Fatalf("GetPlan: ok=%v err=%v", ok, err)
	}
	if p.Payload.Title != "Graphs" || len(p.Payload.Steps) != 1 || p.Payload.Steps[0].Tool != models.ToolRAG {
		t.Fatalf("unexpected plan: %#v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetPlanMissing(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM plans WHERE id=$1`)).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "goal", "plan_json", "created_at"}))

	_, ok, err := st.GetPlan(context.Background(), 99)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if ok {
		t.Fatalf("expected missing plan")
	}
}

func TestListPlansNewestFirst(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, id DESC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "goal", "plan_json", "created_at"}).
			AddRow(int64(2), "b", []byte(`{"title":"B","steps":[]}`), now).
			AddRow(int64(1), "a", []byte(`{"title":"A","steps":[]}`), now.Add(-time.Minute)))

	plans, err := st.ListPlans(context.Background())
	if err != nil {
		t.Fatalf("ListPlans: %v", err)
	}
	if len(plans) != 2 || plans[0].ID != 2 || plans[1].Payload.Title != "A" {
		t.Fatalf("unexpected plans: %#v", plans)
	}
}

func TestUpdatePlanPayloadAddsMissingStepStates(t *testing.T) {
	st, mock := newMockStore(t)
	payload := models.PlanPayload{Title: "x", Steps: []models.Step{{ID: "abcd_step_1"}, {ID: "abcd_step_9"}}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE plans SET plan_json=$1 WHERE id=$2`)).
		WithArgs(sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, s := range payload.Steps {
		mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (step_id) DO UPDATE SET plan_id=steps.plan_id RETURNING plan_id`)).
			WithArgs(s.ID, int64(5), "pending").
			WillReturnRows(sqlmock.NewRows([]string{"plan_id"}).AddRow(int64(5)))
	}
	mock.ExpectCommit()

	ok, err := st.UpdatePlanPayload(context.Background(), 5, payload)
	if err != nil || !ok {
		t.Fatalf("expected update, ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdatePlanPayloadRejectsStepOfAnotherPlan(t *testing.T) {
	st, mock := newMockStore(t)
	payload := models.PlanPayload{Title: "x", Steps: []models.Step{{ID: "abcd_step_1"}, {ID: "ffff_step_3"}}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE plans SET plan_json=$1 WHERE id=$2`)).
		WithArgs(sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`RETURNING plan_id`)).
		WithArgs("abcd_step_1", int64(5), "pending").
		WillReturnRows(sqlmock.NewRows([]string{"plan_id"}).AddRow(int64(5)))
	mock.ExpectQuery(regexp.QuoteMeta(`RETURNING plan_id`)).
		WithArgs("ffff_step_3", int64(5), "pending").
		WillReturnRows(sqlmock.NewRows([]string{"plan_id"}).AddRow(int64(2)))
	mock.ExpectRollback()

	ok, err := st.UpdatePlanPayload(context.Background(), 5, payload)
	if ok || !errors.Is(err, ErrStepInOtherPlan) {
		t.Fatalf("expected ErrStepInOtherPlan, ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdatePlanPayloadMissingPlan(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE plans SET plan_json=$1 WHERE id=$2`)).
		WithArgs(sqlmock.AnyArg(), int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := st.UpdatePlanPayload(context.Background(), 6, models.PlanPayload{Title: "x"})
	if err != nil || ok {
		t.Fatalf("expected no rows, ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClearAll(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	for _, table := range []string{"steps", "plans", "logs"} {
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM ` + table)).WillReturnResult(sqlmock.NewResult(0, 3))
	}
	mock.ExpectCommit()

	if err := st.ClearAll(context.Background()); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
