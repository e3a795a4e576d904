package store

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/studybuddy/models"
)

// LogInteraction appends an agent prompt/response pair.
func (s *Store) LogInteraction(ctx context.Context, agent, prompt, response string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO logs (agent, prompt, response) VALUES ($1,$2,$3)`, agent, prompt, response)
	if err != nil {
		return err
	}
	recordInteraction(ctx, agent)
	return nil
}

// Logs returns interaction logs newest first, optionally for one agent.
func (s *Store) Logs(ctx context.Context, agent string) ([]models.InteractionLog, error) {
	query := `SELECT id, agent, created_at, prompt, response FROM logs ORDER BY created_at DESC, id DESC`
	var args []any
	if agent = strings.TrimSpace(agent); agent != "" {
		query = `SELECT id, agent, created_at, prompt, response FROM logs WHERE agent=$1 ORDER BY created_at DESC, id DESC`
		args = append(args, agent)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.InteractionLog
	for rows.Next() {
		var l models.InteractionLog
		if err := rows.Scan(&l.ID, &l.Agent, &l.Timestamp, &l.Prompt, &l.Response); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
