package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triage-ai/backend/internal/models"
)

// TableStore persists batches and audit trails in Postgres for deployments
// where local files do not survive restarts.
type TableStore struct {
	Pool *pgxpool.Pool
}

func NewTable(ctx context.Context, databaseURL string) (*TableStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &TableStore{Pool: pool}, nil
}

func (s *TableStore) Close() {
	s.Pool.Close()
}

func (s *TableStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

var tableSchema = []string{
	`CREATE TABLE IF NOT EXISTS triage_tickets (
		batch_id UUID NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL,
		ordinal INT NOT NULL,
		source TEXT NOT NULL,
		sys_id TEXT NOT NULL DEFAULT '',
		number TEXT NOT NULL DEFAULT '',
		short_description TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		created_on TEXT NOT NULL DEFAULT '',
		caller_id TEXT NOT NULL DEFAULT '',
		assigned_to TEXT NOT NULL DEFAULT '',
		jira_id TEXT NOT NULL DEFAULT '',
		jira_key TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		created TEXT NOT NULL DEFAULT '',
		issuetype TEXT NOT NULL DEFAULT '',
		reporter TEXT NOT NULL DEFAULT '',
		assignee TEXT NOT NULL DEFAULT '',
		ai_category TEXT NOT NULL DEFAULT '',
		ai_priority TEXT NOT NULL DEFAULT '',
		ai_skills TEXT NOT NULL DEFAULT '',
		ai_summary TEXT NOT NULL DEFAULT '',
		triage_method TEXT NOT NULL DEFAULT '',
		assigned_engineer TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS triage_tickets_batch_idx ON triage_tickets (batch_id)`,
	`CREATE INDEX IF NOT EXISTS triage_tickets_saved_at_idx ON triage_tickets (saved_at DESC)`,
	`CREATE TABLE IF NOT EXISTS triage_actions (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		action TEXT NOT NULL,
		tickets_processed INT NOT NULL,
		method TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS triage_assignment_log (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		ticket_id TEXT NOT NULL,
		assigned_engineer TEXT NOT NULL DEFAULT '',
		is_fallback BOOLEAN NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`,
}

func (s *TableStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range tableSchema {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var ticketColumns = []string{
	"batch_id", "saved_at", "ordinal", "source", "sys_id", "number",
	"short_description", "description", "priority", "state", "category",
	"created_on", "caller_id", "assigned_to", "jira_id", "jira_key",
	"summary", "status", "created", "issuetype", "reporter", "assignee",
	"ai_category", "ai_priority", "ai_skills", "ai_summary", "triage_method",
	"assigned_engineer",
}

func (s *TableStore) SaveBatch(ctx context.Context, tickets []models.Ticket) (string, error) {
	batchID := uuid.NewString()
	savedAt := time.Now()

	rows := make([][]any, 0, len(tickets))
	for i, t := range tickets {
		r := rowFromTicket(t)
		rows = append(rows, []any{
			batchID, savedAt, i, r.Source, r.SysID, r.Number,
			r.ShortDescription, r.Description, r.Priority, r.State, r.Category,
			r.CreatedOn, r.CallerID, r.AssignedTo, r.JiraID, r.JiraKey,
			r.Summary, r.Status, r.Created, r.IssueType, r.Reporter, r.Assignee,
			r.AICategory, r.AIPriority, r.AISkills, r.AISummary, r.TriageMethod,
			r.AssignedEngineer,
		})
	}
	if _, err := s.Pool.CopyFrom(ctx, pgx.Identifier{"triage_tickets"}, ticketColumns, pgx.CopyFromRows(rows)); err != nil {
		return "", err
	}
	return batchID, nil
}

func (s *TableStore) LoadLatest(ctx context.Context) ([]models.Ticket, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT source, sys_id, number, short_description, description, priority, state, category, created_on, caller_id, assigned_to,
			jira_id, jira_key, summary, status, created, issuetype, reporter, assignee,
			ai_category, ai_priority, ai_skills, ai_summary, triage_method, assigned_engineer
		FROM triage_tickets
		WHERE batch_id = (SELECT batch_id FROM triage_tickets ORDER BY saved_at DESC LIMIT 1)
		ORDER BY ordinal ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Ticket
	for rows.Next() {
		var r ticketRow
		if err := rows.Scan(
			&r.Source, &r.SysID, &r.Number, &r.ShortDescription, &r.Description,
			&r.Priority, &r.State, &r.Category, &r.CreatedOn, &r.CallerID, &r.AssignedTo,
			&r.JiraID, &r.JiraKey, &r.Summary, &r.Status, &r.Created, &r.IssueType,
			&r.Reporter, &r.Assignee, &r.AICategory, &r.AIPriority, &r.AISkills,
			&r.AISummary, &r.TriageMethod, &r.AssignedEngineer,
		); err != nil {
			return nil, err
		}
		out = append(out, r.ticket())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoBatches
	}
	return out, nil
}

func (s *TableStore) AppendActionLog(ctx context.Context, rec models.ActionRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO triage_actions (ts, action, tickets_processed, method)
		VALUES ($1, $2, $3, $4)
	`, ts, rec.Action, rec.TicketsProcessed, rec.Method)
	return err
}

func (s *TableStore) AppendAssignmentLog(ctx context.Context, rec models.AssignmentRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO triage_assignment_log (ts, ticket_id, assigned_engineer, is_fallback, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, ts, rec.TicketID, rec.Engineer, rec.Fallback, rec.Reason)
	return err
}

func (s *TableStore) RecentActions(ctx context.Context, limit int) ([]models.ActionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT ts, action, tickets_processed, method
		FROM triage_actions
		ORDER BY ts DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ActionRecord
	for rows.Next() {
		var rec models.ActionRecord
		if err := rows.Scan(&rec.Timestamp, &rec.Action, &rec.TicketsProcessed, &rec.Method); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
