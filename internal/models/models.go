package models

import "time"

const (
	SourceServiceNow = "ServiceNow"
	SourceJira       = "Jira"
)

// Unassigned is the sentinel engineer value reserved for an empty roster.
const Unassigned = "Unassigned"

type Ticket struct {
	Source     string            `json:"source"`
	ServiceNow *ServiceNowFields `json:"servicenow,omitempty"`
	Jira       *JiraFields       `json:"jira,omitempty"`

	AICategory       string `json:"ai_category"`
	AIPriority       string `json:"ai_priority"`
	AISkills         string `json:"ai_skills"`
	AISummary        string `json:"ai_summary"`
	TriageMethod     string `json:"triage_method"`
	AssignedEngineer string `json:"assigned_engineer"`
}

type ServiceNowFields struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	State            string `json:"state"`
	Category         string `json:"category"`
	CreatedOn        string `json:"created_on"`
	CallerID         string `json:"caller_id"`
	AssignedTo       string `json:"assigned_to"`
}

type JiraFields struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	Created     string `json:"created"`
	IssueType   string `json:"issuetype"`
	Reporter    string `json:"reporter"`
	Assignee    string `json:"assignee"`
}

// Key returns the human-facing ticket identifier (INC number, Jira key,
// or the raw record id when neither is present).
func (t Ticket) Key() string {
	switch {
	case t.ServiceNow != nil:
		if t.ServiceNow.Number != "" {
			return t.ServiceNow.Number
		}
		return t.ServiceNow.SysID
	case t.Jira != nil:
		if t.Jira.Key != "" {
			return t.Jira.Key
		}
		return t.Jira.ID
	}
	return ""
}

// Title returns the short description regardless of source shape.
func (t Ticket) Title() string {
	switch {
	case t.ServiceNow != nil:
		return t.ServiceNow.ShortDescription
	case t.Jira != nil:
		return t.Jira.Summary
	}
	return ""
}

// Body returns the long description, falling back to the title when the
// source supplied none.
func (t Ticket) Body() string {
	var desc string
	switch {
	case t.ServiceNow != nil:
		desc = t.ServiceNow.Description
	case t.Jira != nil:
		desc = t.Jira.Description
	}
	if desc == "" {
		return t.Title()
	}
	return desc
}

func (t Ticket) CreatedAt() string {
	switch {
	case t.ServiceNow != nil:
		return t.ServiceNow.CreatedOn
	case t.Jira != nil:
		return t.Jira.Created
	}
	return ""
}

func (t *Ticket) ApplyEnrichment(e Enrichment) {
	t.AICategory = e.Category
	t.AIPriority = e.Priority
	t.AISkills = e.Skills
	t.AISummary = e.Summary
	t.TriageMethod = e.Method
}

// Enrichment is the classifier output for a single ticket. All fields are
// non-empty after a successful classification.
type Enrichment struct {
	Category string `json:"ai_category"`
	Priority string `json:"ai_priority"`
	Skills   string `json:"ai_skills"`
	Summary  string `json:"ai_summary"`
	Method   string `json:"triage_method"`
}

type Engineer struct {
	Name         string   `json:"name" mapstructure:"name"`
	Skills       []string `json:"skills" mapstructure:"skills"`
	Availability string   `json:"availability" mapstructure:"availability"`
	MaxWorkload  int      `json:"max_workload" mapstructure:"max_workload"`
}

// AssignmentRecord is one row of the append-only assignment audit log.
type AssignmentRecord struct {
	Timestamp time.Time `json:"timestamp"`
	TicketID  string    `json:"ticket_id"`
	Engineer  string    `json:"assigned_engineer"`
	Fallback  bool      `json:"is_fallback"`
	Reason    string    `json:"reason"`
}

// ActionRecord is one line of the pipeline action log.
type ActionRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	Action           string    `json:"action"`
	TicketsProcessed int       `json:"tickets_processed"`
	Method           string    `json:"method"`
}

// ScoreRow is one engineer's scoring breakdown for a single ticket, as
// surfaced by the diagnostics endpoint.
type ScoreRow struct {
	Engineer       string   `json:"engineer"`
	SkillScore     float64  `json:"skill_score"`
	MatchingSkills []string `json:"matching_skills"`
	WorkloadScore  float64  `json:"workload_score"`
	Availability   string   `json:"availability"`
	CombinedScore  float64  `json:"combined_score"`
}
