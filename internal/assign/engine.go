package assign

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/triage-ai/backend/internal/metrics"
	"github.com/triage-ai/backend/internal/models"
)

const (
	DefaultSkillWeight    = 0.6
	DefaultWorkloadWeight = 0.4
)

const fallbackReason = "No suitable engineer found (fallback to least loaded)"

// AuditSink receives a record for every fallback assignment.
type AuditSink interface {
	AppendAssignmentLog(ctx context.Context, rec models.AssignmentRecord) error
}

type Options struct {
	SkillWeight    float64
	WorkloadWeight float64
	AllowOverflow  bool
	ResetWorkload  bool
}

func DefaultOptions() Options {
	return Options{SkillWeight: DefaultSkillWeight, WorkloadWeight: DefaultWorkloadWeight}
}

// Engine scores tickets against the engineer roster and tracks per-engineer
// workload across a run. One engine instance owns its workload map; do not
// share an instance between concurrent pipelines.
type Engine struct {
	engineers []models.Engineer
	workload  map[string]int
	audit     AuditSink
	logger    zerolog.Logger
}

func New(engineers []models.Engineer, audit AuditSink, logger zerolog.Logger) *Engine {
	workload := make(map[string]int, len(engineers))
	for _, eng := range engineers {
		workload[eng.Name] = 0
	}
	return &Engine{engineers: engineers, workload: workload, audit: audit, logger: logger}
}

// ParseSkills normalizes a required-skills value to unique tokens in first
// occurrence order. Accepts "Network, Security", "[Network, Security]" and
// "['Network', 'Security']"; surrounding quotes and whitespace are stripped.
func ParseSkills(raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = s[1 : len(s)-1]
	}
	seen := map[string]bool{}
	var out []string
	for _, part := range strings.Split(s, ",") {
		tok := strings.TrimSpace(strings.Trim(strings.TrimSpace(part), `'"`))
		if tok == "" {
			continue
		}
		key := strings.ToLower(tok)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tok)
	}
	return out
}

// SkillScore is the fraction of required skills the engineer has. An empty
// requirement scores a neutral 0.5.
func SkillScore(eng models.Engineer, requiredSkills string) float64 {
	required := ParseSkills(requiredSkills)
	if len(required) == 0 {
		return 0.5
	}
	have := engineerSkillSet(eng)
	matches := 0
	for _, s := range required {
		if have[strings.ToLower(s)] {
			matches++
		}
	}
	return float64(matches) / float64(len(required))
}

// WorkloadScore is the engineer's remaining headroom: 1 at zero load, 0 at
// or beyond max_workload.
func (e *Engine) WorkloadScore(eng models.Engineer) float64 {
	current := e.workload[eng.Name]
	if eng.MaxWorkload <= 0 || current >= eng.MaxWorkload {
		return 0.0
	}
	return 1.0 - float64(current)/float64(eng.MaxWorkload)
}

func AvailabilityScore(eng models.Engineer) float64 {
	if strings.EqualFold(eng.Availability, "available") {
		return 1.0
	}
	return 0.0
}

func combinedScore(skill, workload float64, opts Options) float64 {
	combined := skill*opts.SkillWeight + workload*opts.WorkloadWeight
	// A zero-skill engineer still ranks by workload with a small floor, so a
	// batch with no matching skills anywhere gets an assignee instead of
	// nobody.
	if skill == 0.0 {
		combined = 0.1 + workload*opts.WorkloadWeight
	}
	return combined
}

func (e *Engine) findBest(t models.Ticket, opts Options) (string, bool) {
	best := ""
	bestScore := -1.0
	for _, eng := range e.engineers {
		skill := SkillScore(eng, t.AISkills)
		workload := e.WorkloadScore(eng)

		if AvailabilityScore(eng) == 0.0 {
			continue
		}
		if workload == 0.0 && !opts.AllowOverflow {
			continue
		}

		if score := combinedScore(skill, workload, opts); score > bestScore {
			bestScore = score
			best = eng.Name
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// fallback picks the least-loaded available engineer, or the least-loaded
// engineer overall when nobody is available, and records the audit entry.
func (e *Engine) fallback(ctx context.Context, ticketID string) string {
	candidates := e.engineers
	var available []models.Engineer
	for _, eng := range e.engineers {
		if AvailabilityScore(eng) == 1.0 {
			available = append(available, eng)
		}
	}
	if len(available) > 0 {
		candidates = available
	}

	chosen := ""
	minLoad := -1
	for _, eng := range candidates {
		load := e.workload[eng.Name]
		if minLoad < 0 || load < minLoad {
			minLoad = load
			chosen = eng.Name
		}
	}

	metrics.FallbackAssignments.Inc()
	rec := models.AssignmentRecord{
		Timestamp: time.Now().UTC(),
		TicketID:  ticketID,
		Engineer:  chosen,
		Fallback:  true,
		Reason:    fallbackReason,
	}
	if e.audit != nil {
		if err := e.audit.AppendAssignmentLog(ctx, rec); err != nil {
			e.logger.Warn().Err(err).Str("ticket_id", ticketID).Msg("assignment log append failed")
		}
	}
	return chosen
}

// AssignTicket picks an engineer for one ticket and bumps their workload
// counter. The returned ticket always has assigned_engineer populated;
// "Unassigned" appears only when the roster is empty.
func (e *Engine) AssignTicket(ctx context.Context, t models.Ticket, opts Options) models.Ticket {
	name, ok := e.findBest(t, opts)
	if !ok {
		ticketID := t.Key()
		if ticketID == "" {
			ticketID = "Unknown"
		}
		name = e.fallback(ctx, ticketID)
	}

	if name == "" {
		t.AssignedEngineer = models.Unassigned
		return t
	}
	t.AssignedEngineer = name
	e.workload[name]++
	return t
}

// AssignBatch dispatches tickets highest priority first. Workload counters
// persist across batches unless opts.ResetWorkload is set.
func (e *Engine) AssignBatch(ctx context.Context, tickets []models.Ticket, opts Options) []models.Ticket {
	sorted := make([]models.Ticket, len(tickets))
	copy(sorted, tickets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return priorityRank(sorted[i].AIPriority) < priorityRank(sorted[j].AIPriority)
	})

	if opts.ResetWorkload {
		e.ResetWorkload()
	}

	out := make([]models.Ticket, 0, len(sorted))
	for _, t := range sorted {
		out = append(out, e.AssignTicket(ctx, t, opts))
	}
	return out
}

// Diagnostics scores every roster engineer against one ticket without
// touching workload state. Rows are sorted by combined score descending.
func (e *Engine) Diagnostics(t models.Ticket, opts Options) []models.ScoreRow {
	required := ParseSkills(t.AISkills)
	rows := make([]models.ScoreRow, 0, len(e.engineers))
	for _, eng := range e.engineers {
		skill := SkillScore(eng, t.AISkills)
		workload := e.WorkloadScore(eng)

		availability := "unavailable"
		if AvailabilityScore(eng) == 1.0 {
			availability = "available"
		}

		rows = append(rows, models.ScoreRow{
			Engineer:       eng.Name,
			SkillScore:     skill,
			MatchingSkills: matchingSkills(eng, required),
			WorkloadScore:  workload,
			Availability:   availability,
			CombinedScore:  combinedScore(skill, workload, opts),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CombinedScore > rows[j].CombinedScore
	})
	return rows
}

// WorkloadSummary returns a copy of the current per-engineer counters.
func (e *Engine) WorkloadSummary() map[string]int {
	out := make(map[string]int, len(e.workload))
	for name, n := range e.workload {
		out[name] = n
	}
	return out
}

func (e *Engine) ResetWorkload() {
	for name := range e.workload {
		e.workload[name] = 0
	}
}

func (e *Engine) Engineers() []models.Engineer {
	return e.engineers
}

func priorityRank(priority string) int {
	switch priority {
	case "High":
		return 0
	case "Medium":
		return 1
	case "Low":
		return 2
	}
	return 1
}

func engineerSkillSet(eng models.Engineer) map[string]bool {
	have := make(map[string]bool, len(eng.Skills))
	for _, s := range eng.Skills {
		have[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return have
}

func matchingSkills(eng models.Engineer, required []string) []string {
	have := engineerSkillSet(eng)
	var out []string
	for _, s := range required {
		if have[strings.ToLower(s)] {
			out = append(out, s)
		}
	}
	return out
}
