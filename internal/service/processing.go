package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/triage-ai/backend/internal/ai"
	"github.com/triage-ai/backend/internal/assign"
	"github.com/triage-ai/backend/internal/metrics"
	"github.com/triage-ai/backend/internal/models"
	"github.com/triage-ai/backend/internal/source"
	"github.com/triage-ai/backend/internal/storage"
)

const (
	ActionTriageAndAssign = "triage_and_assign"
	ActionReassign        = "reassign"
)

// ErrTicketNotFound is returned by Diagnose when the requested ticket is not
// part of the latest saved batch.
var ErrTicketNotFound = errors.New("ticket not found in latest batch")

// TriageService runs the pipeline: fetch from the enabled sources, classify,
// assign, persist. One instance owns one assignment engine, so workload
// counters carry across runs unless a run resets them.
type TriageService struct {
	Sources    []source.Source
	Mock       source.Source
	Classifier ai.Classifier
	Fallback   ai.Classifier
	Engine     *assign.Engine
	Store      storage.Store
	Logger     zerolog.Logger

	// Options are the configured assignment defaults. Zero weights mean the
	// engine defaults; a run can still override any of them.
	Options assign.Options
}

// RunOptions are the per-run knobs. Nil weights keep the configured defaults;
// mock counts apply only when the run falls back to generated tickets.
type RunOptions struct {
	SkillWeight         *float64
	WorkloadWeight      *float64
	AllowOverflow       bool
	ResetWorkload       bool
	MockServiceNowCount int
	MockJiraCount       int
}

func (s *TriageService) assignOptions(opts RunOptions) assign.Options {
	ao := s.Options
	if ao.SkillWeight == 0 && ao.WorkloadWeight == 0 {
		ao = assign.DefaultOptions()
	}
	if opts.SkillWeight != nil {
		ao.SkillWeight = *opts.SkillWeight
	}
	if opts.WorkloadWeight != nil {
		ao.WorkloadWeight = *opts.WorkloadWeight
	}
	if opts.AllowOverflow {
		ao.AllowOverflow = true
	}
	ao.ResetWorkload = opts.ResetWorkload
	return ao
}

type RunSummary struct {
	Events  []map[string]any `json:"events"`
	Counts  map[string]any   `json:"counts"`
	Tickets []models.Ticket  `json:"tickets"`
}

func (s *TriageService) ProcessTickets(ctx context.Context, opts RunOptions) (RunSummary, error) {
	start := time.Now()
	summary := RunSummary{Counts: map[string]any{}}

	tickets, bySource, failedSources, err := s.fetchTickets(ctx, opts)
	if err != nil {
		return RunSummary{}, err
	}
	summary.Events = append(summary.Events, map[string]any{
		"type":           "ingest",
		"message":        "Tickets fetched",
		"count":          len(tickets),
		"by_source":      bySource,
		"failed_sources": failedSources,
		"time":           time.Now().UTC(),
	})

	if len(tickets) == 0 {
		summary.Events = append(summary.Events, map[string]any{
			"type":    "empty_batch",
			"message": "No tickets to process",
			"time":    time.Now().UTC(),
		})
		summary.Counts["tickets_processed"] = 0
		return summary, nil
	}

	stats := s.classifyTickets(ctx, tickets)
	summary.Events = append(summary.Events, map[string]any{
		"type":           "classification",
		"message":        "Classification complete",
		"count":          len(tickets),
		"avg_latency_ms": avgLatency(stats.latencyTotal, len(tickets)),
		"errors":         stats.errors,
		"time":           time.Now().UTC(),
	})

	assigned := s.Engine.AssignBatch(ctx, tickets, s.assignOptions(opts))
	assignedCount, unassignedCount := countAssigned(assigned)
	summary.Events = append(summary.Events, map[string]any{
		"type":       "assignment",
		"assigned":   assignedCount,
		"unassigned": unassignedCount,
		"time":       time.Now().UTC(),
	})

	location, saveErr := s.saveBatch(ctx, ActionTriageAndAssign, assigned)
	summary.Events = append(summary.Events, saveEvent(location, saveErr, time.Since(start)))

	summary.Counts["tickets_processed"] = len(assigned)
	summary.Counts["assigned"] = assignedCount
	summary.Counts["unassigned"] = unassignedCount
	summary.Counts["high_priority"] = countPriority(assigned, "High")
	summary.Counts["ai_errors"] = stats.errors
	summary.Counts["by_method"] = stats.byMethod
	summary.Counts["by_source"] = bySource
	summary.Counts["save_failed"] = saveErr != nil
	if location != "" {
		summary.Counts["save_location"] = location
	}
	summary.Tickets = assigned

	metrics.RunDuration.WithLabelValues(ActionTriageAndAssign).Observe(time.Since(start).Seconds())
	return summary, nil
}

// Reassign reruns classification and assignment over the latest saved batch.
// Workload counters always reset, so repeating it over the same batch gives
// identical assignments.
func (s *TriageService) Reassign(ctx context.Context, opts RunOptions) (RunSummary, error) {
	start := time.Now()
	summary := RunSummary{Counts: map[string]any{}}

	tickets, err := s.Store.LoadLatest(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	summary.Events = append(summary.Events, map[string]any{
		"type":    "load",
		"message": "Latest batch loaded",
		"count":   len(tickets),
		"time":    time.Now().UTC(),
	})

	if len(tickets) == 0 {
		summary.Counts["tickets_processed"] = 0
		return summary, nil
	}

	stats := s.classifyTickets(ctx, tickets)
	opts.ResetWorkload = true
	assigned := s.Engine.AssignBatch(ctx, tickets, s.assignOptions(opts))
	assignedCount, unassignedCount := countAssigned(assigned)

	location, saveErr := s.saveBatch(ctx, ActionReassign, assigned)
	summary.Events = append(summary.Events, saveEvent(location, saveErr, time.Since(start)))

	summary.Counts["tickets_processed"] = len(assigned)
	summary.Counts["assigned"] = assignedCount
	summary.Counts["unassigned"] = unassignedCount
	summary.Counts["high_priority"] = countPriority(assigned, "High")
	summary.Counts["ai_errors"] = stats.errors
	summary.Counts["by_method"] = stats.byMethod
	summary.Counts["save_failed"] = saveErr != nil
	if location != "" {
		summary.Counts["save_location"] = location
	}
	summary.Tickets = assigned

	metrics.RunDuration.WithLabelValues(ActionReassign).Observe(time.Since(start).Seconds())
	return summary, nil
}

// fetchTickets pulls from every enabled source, dropping a source's
// contribution when it fails. The mock generator steps in only when no
// source produced a successful fetch.
func (s *TriageService) fetchTickets(ctx context.Context, opts RunOptions) ([]models.Ticket, map[string]int, int, error) {
	var tickets []models.Ticket
	bySource := map[string]int{}
	succeeded := 0
	failed := 0

	for _, src := range s.Sources {
		batch, err := src.FetchTickets(ctx)
		if err != nil {
			failed++
			s.Logger.Warn().Err(err).Str("source", src.Name()).Msg("source fetch failed, dropping its contribution")
			continue
		}
		succeeded++
		tickets = append(tickets, batch...)
		bySource[src.Name()] += len(batch)
		metrics.TicketsProcessed.WithLabelValues(src.Name()).Add(float64(len(batch)))
	}

	if succeeded == 0 {
		mock := s.mockSource(opts)
		batch, err := mock.FetchTickets(ctx)
		if err != nil {
			return nil, nil, failed, err
		}
		if failed > 0 {
			s.Logger.Warn().Int("failed_sources", failed).Msg("all sources failed, using mock tickets")
		}
		tickets = batch
		bySource[mock.Name()] = len(batch)
		metrics.TicketsProcessed.WithLabelValues(mock.Name()).Add(float64(len(batch)))
	}
	return tickets, bySource, failed, nil
}

func (s *TriageService) mockSource(opts RunOptions) source.Source {
	if opts.MockServiceNowCount > 0 || opts.MockJiraCount > 0 {
		return &source.MockSource{
			ServiceNowCount: opts.MockServiceNowCount,
			JiraCount:       opts.MockJiraCount,
		}
	}
	if s.Mock != nil {
		return s.Mock
	}
	return &source.MockSource{}
}

type classifyStats struct {
	errors       int
	latencyTotal int64
	byMethod     map[string]int
}

// classifyTickets enriches every ticket in place, in input order. A failed
// classification falls back to the rule classifier for that ticket only.
func (s *TriageService) classifyTickets(ctx context.Context, tickets []models.Ticket) classifyStats {
	stats := classifyStats{byMethod: map[string]int{}}
	for i := range tickets {
		enr, latencyMs, err := s.Classifier.Classify(ctx, tickets[i])
		if err != nil {
			stats.errors++
			metrics.ClassifierFallbacks.Inc()
			s.Logger.Warn().Err(err).Str("ticket_id", tickets[i].Key()).Msg("classifier failed, falling back to rules")
			enr, latencyMs, _ = s.ruleFallback().Classify(ctx, tickets[i])
		}
		tickets[i].ApplyEnrichment(enr)
		stats.latencyTotal += latencyMs
		stats.byMethod[enr.Method]++
		metrics.Classifications.WithLabelValues(enr.Method).Inc()
	}
	return stats
}

func (s *TriageService) ruleFallback() ai.Classifier {
	if s.Fallback != nil {
		return s.Fallback
	}
	return ai.RuleClassifier{}
}

// saveBatch persists the batch and appends the action-log entry. A failed
// save never drops the in-memory batch; the caller still returns it.
func (s *TriageService) saveBatch(ctx context.Context, action string, tickets []models.Ticket) (string, error) {
	location, err := s.Store.SaveBatch(ctx, tickets)
	if err != nil {
		metrics.StoreFailures.Inc()
		s.Logger.Error().Err(err).Msg("batch save failed, batch kept in memory")
		location = ""
	}
	entry := models.ActionRecord{
		Action:           action,
		TicketsProcessed: len(tickets),
		Method:           s.Classifier.Method(),
	}
	if logErr := s.Store.AppendActionLog(ctx, entry); logErr != nil {
		s.Logger.Warn().Err(logErr).Msg("action log append failed")
	}
	return location, err
}

// LatestBatch returns the most recently saved tickets.
func (s *TriageService) LatestBatch(ctx context.Context) ([]models.Ticket, error) {
	return s.Store.LoadLatest(ctx)
}

// RecentActions returns up to limit action-log entries, newest first.
func (s *TriageService) RecentActions(ctx context.Context, limit int) ([]models.ActionRecord, error) {
	return s.Store.RecentActions(ctx, limit)
}

// EngineerStatus is one roster entry with its live workload counter.
type EngineerStatus struct {
	models.Engineer
	CurrentWorkload int `json:"current_workload"`
}

func (s *TriageService) Engineers() []EngineerStatus {
	workload := s.Engine.WorkloadSummary()
	roster := s.Engine.Engineers()
	out := make([]EngineerStatus, 0, len(roster))
	for _, eng := range roster {
		out = append(out, EngineerStatus{Engineer: eng, CurrentWorkload: workload[eng.Name]})
	}
	return out
}

func (s *TriageService) Workload() map[string]int {
	return s.Engine.WorkloadSummary()
}

// Analytics summarizes the latest saved batch for the dashboard.
type Analytics struct {
	Total        int            `json:"total"`
	HighPriority int            `json:"high_priority"`
	Unassigned   int            `json:"unassigned"`
	ByCategory   map[string]int `json:"by_category"`
	ByPriority   map[string]int `json:"by_priority"`
	ByMethod     map[string]int `json:"by_method"`
	ByEngineer   map[string]int `json:"by_engineer"`
}

func (s *TriageService) Analytics(ctx context.Context) (Analytics, error) {
	tickets, err := s.Store.LoadLatest(ctx)
	if err != nil {
		return Analytics{}, err
	}
	out := Analytics{
		Total:      len(tickets),
		ByCategory: map[string]int{},
		ByPriority: map[string]int{},
		ByMethod:   map[string]int{},
		ByEngineer: map[string]int{},
	}
	for _, t := range tickets {
		if t.AIPriority == "High" {
			out.HighPriority++
		}
		if t.AssignedEngineer == models.Unassigned {
			out.Unassigned++
		}
		out.ByCategory[t.AICategory]++
		out.ByPriority[t.AIPriority]++
		out.ByMethod[t.TriageMethod]++
		out.ByEngineer[t.AssignedEngineer]++
	}
	return out, nil
}

// Diagnose scores every engineer against one ticket of the latest batch.
// An empty ticketID picks the first ticket.
func (s *TriageService) Diagnose(ctx context.Context, ticketID string, opts RunOptions) (models.Ticket, []models.ScoreRow, error) {
	tickets, err := s.Store.LoadLatest(ctx)
	if err != nil {
		return models.Ticket{}, nil, err
	}
	for _, t := range tickets {
		if ticketID == "" || t.Key() == ticketID {
			return t, s.Engine.Diagnostics(t, s.assignOptions(opts)), nil
		}
	}
	return models.Ticket{}, nil, ErrTicketNotFound
}

func avgLatency(total int64, count int) int64 {
	if count == 0 {
		return 0
	}
	return total / int64(count)
}

func countAssigned(tickets []models.Ticket) (assigned, unassigned int) {
	for _, t := range tickets {
		if t.AssignedEngineer == models.Unassigned || t.AssignedEngineer == "" {
			unassigned++
			continue
		}
		assigned++
	}
	return assigned, unassigned
}

func countPriority(tickets []models.Ticket, priority string) int {
	n := 0
	for _, t := range tickets {
		if t.AIPriority == priority {
			n++
		}
	}
	return n
}

func saveEvent(location string, err error, elapsed time.Duration) map[string]any {
	event := map[string]any{
		"type":       "save",
		"message":    "Batch saved",
		"elapsed_ms": elapsed.Milliseconds(),
		"time":       time.Now().UTC(),
	}
	if err != nil {
		event["message"] = "Batch save failed"
		event["error"] = err.Error()
	} else if location != "" {
		event["location"] = location
	}
	return event
}
