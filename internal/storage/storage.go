package storage

import (
	"context"
	"errors"

	"github.com/triage-ai/backend/internal/models"
)

// ErrNoBatches is returned by LoadLatest before any batch has been saved.
var ErrNoBatches = errors.New("no ticket batches saved yet")

// Store persists triage batches and the append-only audit trails. SaveBatch
// returns a location handle (file path or batch id) once the batch is
// durable.
type Store interface {
	SaveBatch(ctx context.Context, tickets []models.Ticket) (string, error)
	LoadLatest(ctx context.Context) ([]models.Ticket, error)
	AppendActionLog(ctx context.Context, rec models.ActionRecord) error
	AppendAssignmentLog(ctx context.Context, rec models.AssignmentRecord) error
	RecentActions(ctx context.Context, limit int) ([]models.ActionRecord, error)
	Close()
}

// ticketRow is the flat persisted shape: the union of both source layouts
// plus the enrichment and assignment columns. Absent columns stay empty
// strings so the same schema serves ServiceNow and Jira rows.
type ticketRow struct {
	Source           string `parquet:"source"`
	SysID            string `parquet:"sys_id"`
	Number           string `parquet:"number"`
	ShortDescription string `parquet:"short_description"`
	Description      string `parquet:"description"`
	Priority         string `parquet:"priority"`
	State            string `parquet:"state"`
	Category         string `parquet:"category"`
	CreatedOn        string `parquet:"created_on"`
	CallerID         string `parquet:"caller_id"`
	AssignedTo       string `parquet:"assigned_to"`
	JiraID           string `parquet:"id"`
	JiraKey          string `parquet:"key"`
	Summary          string `parquet:"summary"`
	Status           string `parquet:"status"`
	Created          string `parquet:"created"`
	IssueType        string `parquet:"issuetype"`
	Reporter         string `parquet:"reporter"`
	Assignee         string `parquet:"assignee"`
	AICategory       string `parquet:"ai_category"`
	AIPriority       string `parquet:"ai_priority"`
	AISkills         string `parquet:"ai_skills"`
	AISummary        string `parquet:"ai_summary"`
	TriageMethod     string `parquet:"triage_method"`
	AssignedEngineer string `parquet:"assigned_engineer"`
}

func rowFromTicket(t models.Ticket) ticketRow {
	row := ticketRow{
		Source:           t.Source,
		AICategory:       t.AICategory,
		AIPriority:       t.AIPriority,
		AISkills:         t.AISkills,
		AISummary:        t.AISummary,
		TriageMethod:     t.TriageMethod,
		AssignedEngineer: t.AssignedEngineer,
	}
	if sn := t.ServiceNow; sn != nil {
		row.SysID = sn.SysID
		row.Number = sn.Number
		row.ShortDescription = sn.ShortDescription
		row.Description = sn.Description
		row.Priority = sn.Priority
		row.State = sn.State
		row.Category = sn.Category
		row.CreatedOn = sn.CreatedOn
		row.CallerID = sn.CallerID
		row.AssignedTo = sn.AssignedTo
	}
	if jf := t.Jira; jf != nil {
		row.JiraID = jf.ID
		row.JiraKey = jf.Key
		row.Summary = jf.Summary
		row.Description = jf.Description
		row.Priority = jf.Priority
		row.Status = jf.Status
		row.Created = jf.Created
		row.IssueType = jf.IssueType
		row.Reporter = jf.Reporter
		row.Assignee = jf.Assignee
	}
	return row
}

func (r ticketRow) ticket() models.Ticket {
	t := models.Ticket{
		Source:           r.Source,
		AICategory:       r.AICategory,
		AIPriority:       r.AIPriority,
		AISkills:         r.AISkills,
		AISummary:        r.AISummary,
		TriageMethod:     r.TriageMethod,
		AssignedEngineer: r.AssignedEngineer,
	}
	switch r.Source {
	case models.SourceJira:
		t.Jira = &models.JiraFields{
			ID:          r.JiraID,
			Key:         r.JiraKey,
			Summary:     r.Summary,
			Description: r.Description,
			Priority:    r.Priority,
			Status:      r.Status,
			Created:     r.Created,
			IssueType:   r.IssueType,
			Reporter:    r.Reporter,
			Assignee:    r.Assignee,
		}
	default:
		t.ServiceNow = &models.ServiceNowFields{
			SysID:            r.SysID,
			Number:           r.Number,
			ShortDescription: r.ShortDescription,
			Description:      r.Description,
			Priority:         r.Priority,
			State:            r.State,
			Category:         r.Category,
			CreatedOn:        r.CreatedOn,
			CallerID:         r.CallerID,
			AssignedTo:       r.AssignedTo,
		}
	}
	return t
}

// assignmentRow is one fallback-audit entry in data/reassign_log.parquet.
type assignmentRow struct {
	Timestamp        string `parquet:"timestamp"`
	TicketID         string `parquet:"ticket_id"`
	AssignedEngineer string `parquet:"assigned_engineer"`
	IsFallback       bool   `parquet:"is_fallback"`
	Reason           string `parquet:"reason"`
}
