package assign

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/triage-ai/backend/internal/models"
)

type memorySink struct {
	records []models.AssignmentRecord
}

func (m *memorySink) AppendAssignmentLog(ctx context.Context, rec models.AssignmentRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func engineer(name string, skills []string, max int) models.Engineer {
	return models.Engineer{Name: name, Skills: skills, Availability: "available", MaxWorkload: max}
}

func ticketWithSkills(id, priority, skills string) models.Ticket {
	return models.Ticket{
		Source:     models.SourceServiceNow,
		ServiceNow: &models.ServiceNowFields{Number: id},
		AIPriority: priority,
		AISkills:   skills,
	}
}

func newEngine(engineers []models.Engineer, sink *memorySink) *Engine {
	return New(engineers, sink, zerolog.Nop())
}

func TestSkillScoreShapes(t *testing.T) {
	eng := engineer("A", []string{"Network", "Security"}, 5)
	inputs := []string{
		"Network, Security",
		"[Network, Security]",
		"['Network', 'Security']",
	}
	for _, in := range inputs {
		if got := SkillScore(eng, in); got != 1.0 {
			t.Fatalf("input %q: expected 1.0, got %v", in, got)
		}
	}
	if got := SkillScore(eng, "network, database"); got != 0.5 {
		t.Fatalf("expected 0.5 for half match, got %v", got)
	}
}

func TestSkillScoreNeutralOnEmpty(t *testing.T) {
	engineers := []models.Engineer{
		engineer("A", []string{"Network"}, 5),
		engineer("B", nil, 5),
	}
	for _, eng := range engineers {
		if got := SkillScore(eng, ""); got != 0.5 {
			t.Fatalf("engineer %s: expected neutral 0.5, got %v", eng.Name, got)
		}
		if got := SkillScore(eng, " , "); got != 0.5 {
			t.Fatalf("engineer %s: expected neutral 0.5 on blank tokens, got %v", eng.Name, got)
		}
	}
}

func TestParseSkillsKeepsOrderAndCase(t *testing.T) {
	got := ParseSkills("['Security', 'Network', 'security']")
	if len(got) != 2 || got[0] != "Security" || got[1] != "Network" {
		t.Fatalf("unexpected tokens %v", got)
	}
}

func TestWorkloadScore(t *testing.T) {
	e := newEngine([]models.Engineer{engineer("A", nil, 4)}, nil)
	if got := e.WorkloadScore(e.engineers[0]); got != 1.0 {
		t.Fatalf("expected 1.0 at zero load, got %v", got)
	}
	e.workload["A"] = 1
	if got := e.WorkloadScore(e.engineers[0]); got != 0.75 {
		t.Fatalf("expected 0.75, got %v", got)
	}
	e.workload["A"] = 4
	if got := e.WorkloadScore(e.engineers[0]); got != 0.0 {
		t.Fatalf("expected 0.0 at max, got %v", got)
	}
}

func TestAssignPrefersSkillMatch(t *testing.T) {
	sink := &memorySink{}
	e := newEngine([]models.Engineer{
		engineer("A", []string{"Network", "Security"}, 2),
		engineer("B", []string{"Database"}, 2),
	}, sink)

	got := e.AssignTicket(context.Background(), ticketWithSkills("INC1", "Medium", "Network, Security"), DefaultOptions())
	if got.AssignedEngineer != "A" {
		t.Fatalf("expected A, got %s", got.AssignedEngineer)
	}
	if e.WorkloadSummary()["A"] != 1 {
		t.Fatalf("expected workload increment for A, got %v", e.WorkloadSummary())
	}
	if len(sink.records) != 0 {
		t.Fatalf("expected no fallback records, got %d", len(sink.records))
	}
}

func TestCapacityFallbackAudited(t *testing.T) {
	sink := &memorySink{}
	e := newEngine([]models.Engineer{
		engineer("A", []string{"Network"}, 1),
		engineer("B", []string{"Network"}, 1),
	}, sink)

	batch := []models.Ticket{
		ticketWithSkills("INC1", "Medium", "Network"),
		ticketWithSkills("INC2", "Medium", "Network"),
		ticketWithSkills("INC3", "Medium", "Network"),
	}
	out := e.AssignBatch(context.Background(), batch, DefaultOptions())

	if out[0].AssignedEngineer != "A" || out[1].AssignedEngineer != "B" {
		t.Fatalf("expected A then B, got %s then %s", out[0].AssignedEngineer, out[1].AssignedEngineer)
	}
	if out[2].AssignedEngineer != "A" {
		t.Fatalf("expected fallback to least-loaded first-seen A, got %s", out[2].AssignedEngineer)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected exactly one audit record, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if !rec.Fallback || rec.TicketID != "INC3" || rec.Engineer != "A" {
		t.Fatalf("unexpected audit record %+v", rec)
	}
	if rec.Reason != "No suitable engineer found (fallback to least loaded)" {
		t.Fatalf("unexpected reason %q", rec.Reason)
	}
}

func TestOverflowSkipsFallback(t *testing.T) {
	sink := &memorySink{}
	e := newEngine([]models.Engineer{
		engineer("A", []string{"Network"}, 1),
		engineer("B", []string{"Network"}, 1),
	}, sink)

	opts := DefaultOptions()
	opts.AllowOverflow = true
	batch := []models.Ticket{
		ticketWithSkills("INC1", "Medium", "Network"),
		ticketWithSkills("INC2", "Medium", "Network"),
		ticketWithSkills("INC3", "Medium", "Network"),
	}
	out := e.AssignBatch(context.Background(), batch, opts)

	if out[2].AssignedEngineer != "A" {
		t.Fatalf("expected overflow tie to resolve first-seen to A, got %s", out[2].AssignedEngineer)
	}
	if len(sink.records) != 0 {
		t.Fatalf("expected no audit records in overflow mode, got %d", len(sink.records))
	}
}

func TestUnavailableEngineerSkipped(t *testing.T) {
	e := newEngine([]models.Engineer{
		{Name: "A", Skills: []string{"Network"}, Availability: "on leave", MaxWorkload: 5},
		engineer("B", []string{"Database"}, 5),
	}, nil)

	got := e.AssignTicket(context.Background(), ticketWithSkills("INC1", "Medium", "Network"), DefaultOptions())
	if got.AssignedEngineer != "B" {
		t.Fatalf("expected unavailable A to be skipped, got %s", got.AssignedEngineer)
	}
}

func TestNoSkillMatchRanksByWorkload(t *testing.T) {
	e := newEngine([]models.Engineer{
		engineer("A", []string{"Frontend"}, 5),
		engineer("B", []string{"Frontend"}, 5),
	}, nil)
	e.workload["A"] = 2

	got := e.AssignTicket(context.Background(), ticketWithSkills("INC1", "Medium", "Network"), DefaultOptions())
	if got.AssignedEngineer != "B" {
		t.Fatalf("expected least-loaded B under degenerate skill rule, got %s", got.AssignedEngineer)
	}
}

func TestBatchOrdersByPriority(t *testing.T) {
	e := newEngine([]models.Engineer{engineer("A", []string{"Network"}, 10)}, nil)
	batch := []models.Ticket{
		ticketWithSkills("INC1", "Low", "Network"),
		ticketWithSkills("INC2", "High", "Network"),
		ticketWithSkills("INC3", "Medium", "Network"),
		ticketWithSkills("INC4", "", "Network"),
		ticketWithSkills("INC5", "High", "Network"),
	}
	out := e.AssignBatch(context.Background(), batch, DefaultOptions())

	wantOrder := []string{"INC2", "INC5", "INC3", "INC4", "INC1"}
	for i, want := range wantOrder {
		if out[i].Key() != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, out[i].Key())
		}
	}
}

func TestBatchDeterministic(t *testing.T) {
	batch := []models.Ticket{
		ticketWithSkills("INC1", "Medium", "Network"),
		ticketWithSkills("INC2", "High", "Database"),
		ticketWithSkills("INC3", "Low", ""),
		ticketWithSkills("INC4", "High", "Network, Security"),
	}
	engineers := []models.Engineer{
		engineer("A", []string{"Network", "Security"}, 2),
		engineer("B", []string{"Database", "Backend"}, 2),
		engineer("C", []string{"DevOps"}, 2),
	}

	opts := DefaultOptions()
	opts.ResetWorkload = true

	first := newEngine(engineers, nil).AssignBatch(context.Background(), batch, opts)
	second := newEngine(engineers, nil).AssignBatch(context.Background(), batch, opts)
	for i := range first {
		if first[i].AssignedEngineer != second[i].AssignedEngineer {
			t.Fatalf("position %d: %s vs %s", i, first[i].AssignedEngineer, second[i].AssignedEngineer)
		}
	}
}

func TestWorkloadConservation(t *testing.T) {
	e := newEngine([]models.Engineer{
		engineer("A", []string{"Network"}, 3),
		engineer("B", []string{"Database"}, 3),
		engineer("C", nil, 3),
	}, &memorySink{})
	e.workload["A"] = 2

	batch := []models.Ticket{
		ticketWithSkills("INC1", "High", "Network"),
		ticketWithSkills("INC2", "Medium", "Database"),
		ticketWithSkills("INC3", "Medium", "Network"),
		ticketWithSkills("INC4", "Low", ""),
		ticketWithSkills("INC5", "Low", "Database"),
	}
	opts := DefaultOptions()
	opts.ResetWorkload = true
	out := e.AssignBatch(context.Background(), batch, opts)

	total := 0
	for _, n := range e.WorkloadSummary() {
		total += n
	}
	if total != len(batch) {
		t.Fatalf("expected total workload %d, got %d", len(batch), total)
	}
	names := map[string]bool{"A": true, "B": true, "C": true}
	for _, tk := range out {
		if !names[tk.AssignedEngineer] {
			t.Fatalf("assigned_engineer %q not in roster", tk.AssignedEngineer)
		}
	}
}

func TestCapacityRespectedWithoutOverflow(t *testing.T) {
	sink := &memorySink{}
	e := newEngine([]models.Engineer{
		engineer("A", []string{"Network"}, 2),
		engineer("B", []string{"Network"}, 2),
	}, sink)

	batch := []models.Ticket{
		ticketWithSkills("INC1", "Medium", "Network"),
		ticketWithSkills("INC2", "Medium", "Network"),
		ticketWithSkills("INC3", "Medium", "Network"),
		ticketWithSkills("INC4", "Medium", "Network"),
	}
	e.AssignBatch(context.Background(), batch, DefaultOptions())

	for name, n := range e.WorkloadSummary() {
		if n > 2 {
			t.Fatalf("engineer %s exceeded max workload: %d", name, n)
		}
	}
	if len(sink.records) != 0 {
		t.Fatalf("expected capacity to hold without fallback, got %d records", len(sink.records))
	}
}

func TestEmptyRosterUnassigned(t *testing.T) {
	sink := &memorySink{}
	e := newEngine(nil, sink)

	got := e.AssignTicket(context.Background(), ticketWithSkills("INC1", "High", "Network"), DefaultOptions())
	if got.AssignedEngineer != models.Unassigned {
		t.Fatalf("expected %s, got %s", models.Unassigned, got.AssignedEngineer)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected audit record for empty roster fallback, got %d", len(sink.records))
	}
}

func TestDiagnosticsMatchesSelection(t *testing.T) {
	e := newEngine([]models.Engineer{
		engineer("A", []string{"Network", "Security"}, 2),
		engineer("B", []string{"Database"}, 2),
	}, nil)

	tk := ticketWithSkills("INC1", "Medium", "Network, Security")
	rows := e.Diagnostics(tk, DefaultOptions())
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Engineer != "A" {
		t.Fatalf("expected A on top, got %s", rows[0].Engineer)
	}
	if rows[0].CombinedScore != 1.0 {
		t.Fatalf("expected combined 1.0 for A, got %v", rows[0].CombinedScore)
	}
	if rows[1].CombinedScore != 0.5 {
		t.Fatalf("expected degenerate combined 0.5 for B, got %v", rows[1].CombinedScore)
	}
	if len(rows[0].MatchingSkills) != 2 {
		t.Fatalf("expected both skills to match for A, got %v", rows[0].MatchingSkills)
	}

	assigned := e.AssignTicket(context.Background(), tk, DefaultOptions())
	if assigned.AssignedEngineer != rows[0].Engineer {
		t.Fatalf("diagnostics top %s disagrees with selection %s", rows[0].Engineer, assigned.AssignedEngineer)
	}
}
