package source

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/triage-ai/backend/internal/models"
)

// MockSource fabricates ServiceNow- and Jira-shaped tickets so the pipeline
// runs end to end without remote credentials. A fixed Seed makes the batch
// reproducible apart from the created timestamps.
type MockSource struct {
	ServiceNowCount int
	JiraCount       int
	Seed            int64
}

var ticketTemplates = []struct {
	category     string
	descriptions []string
}{
	{"Network", []string{
		"VPN connection failing intermittently for remote users",
		"Network latency issues in East Coast data center",
		"Firewall rules blocking access to production database",
		"DNS resolution failure for internal domains",
		"Switch port errors causing packet loss on floor 3",
	}},
	{"Database", []string{
		"PostgreSQL database running out of disk space",
		"MySQL replication lag exceeding threshold",
		"Database connection pool exhausted",
		"Slow query performance on user_transactions table",
		"MongoDB replica set member unreachable",
	}},
	{"DevOps", []string{
		"CI/CD pipeline failing on build step",
		"Kubernetes pod stuck in CrashLoopBackOff",
		"Docker registry running out of storage",
		"Jenkins agent nodes offline",
		"Terraform state file locked preventing deployments",
	}},
	{"Security", []string{
		"Suspicious login attempts detected from unusual location",
		"SSL certificate expiring in 7 days",
		"Security scan found critical vulnerabilities in dependencies",
		"Unauthorized access attempt to admin panel",
		"MFA tokens not being delivered to users",
	}},
	{"Frontend", []string{
		"Website header not displaying correctly on mobile devices",
		"JavaScript error preventing form submission",
		"Page load time exceeding 10 seconds",
		"Shopping cart items disappearing on refresh",
		"CSS styling broken after latest deployment",
	}},
	{"Backend", []string{
		"API endpoint returning 500 internal server error",
		"Payment processing service timing out",
		"Email notifications not being sent to users",
		"Background job queue backed up with 10,000+ jobs",
		"Session management causing users to be logged out",
	}},
	{"Access", []string{
		"New employee needs access to Salesforce and Jira",
		"User locked out of account after password reset",
		"Request for admin privileges on production server",
		"Unable to access shared drive from home office",
		"VPN credentials expired for contractor",
	}},
	{"Other", []string{
		"Printer not working on 2nd floor",
		"Conference room TV display flickering",
		"Software license renewal needed",
		"General inquiry about IT policies",
		"Request for new laptop for new hire",
	}},
}

var (
	serviceNowPriorities = []string{"1", "2", "3"}
	// 1=New, 2=In Progress, 3=On Hold, 6=Resolved
	serviceNowStates = []string{"1", "2", "3", "6"}
	jiraPriorities   = []string{"High", "Medium", "Low"}
	jiraStatuses     = []string{"To Do", "In Progress", "In Review", "Done"}
	jiraIssueTypes   = []string{"Bug", "Task", "Story"}
)

func (m *MockSource) Name() string { return "Mock" }

func (m *MockSource) FetchTickets(ctx context.Context) ([]models.Ticket, error) {
	snCount := m.ServiceNowCount
	if snCount <= 0 {
		snCount = 20
	}
	jiraCount := m.JiraCount
	if jiraCount <= 0 {
		jiraCount = 15
	}
	seed := m.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	tickets := make([]models.Ticket, 0, snCount+jiraCount)
	for i := 0; i < snCount; i++ {
		tickets = append(tickets, serviceNowTicket(rng, i))
	}
	for i := 0; i < jiraCount; i++ {
		tickets = append(tickets, jiraTicket(rng, i))
	}
	return tickets, nil
}

func serviceNowTicket(rng *rand.Rand, i int) models.Ticket {
	desc := randomDescription(rng)
	return models.Ticket{
		Source: models.SourceServiceNow,
		ServiceNow: &models.ServiceNowFields{
			SysID:            fmt.Sprintf("SN%d", 10000+i),
			Number:           fmt.Sprintf("INC%d", 10000+i),
			ShortDescription: desc,
			Description:      fmt.Sprintf("Full details: %s. User reported this issue needs immediate attention.", desc),
			Priority:         pick(rng, serviceNowPriorities),
			State:            pick(rng, serviceNowStates),
			Category:         "Incident",
			CreatedOn:        randomCreated(rng),
			CallerID:         fmt.Sprintf("user%d@company.com", 1+rng.Intn(100)),
		},
	}
}

func jiraTicket(rng *rand.Rand, i int) models.Ticket {
	desc := randomDescription(rng)
	return models.Ticket{
		Source: models.SourceJira,
		Jira: &models.JiraFields{
			ID:          fmt.Sprintf("JIRA%d", 20000+i),
			Key:         fmt.Sprintf("PROJ-%d", 1000+i),
			Summary:     desc,
			Description: fmt.Sprintf("Details: %s\n\nSteps to reproduce:\n1. User encounters issue\n2. Issue persists\n3. Requires technical investigation", desc),
			Priority:    pick(rng, jiraPriorities),
			Status:      pick(rng, jiraStatuses),
			Created:     randomCreated(rng),
			IssueType:   pick(rng, jiraIssueTypes),
			Reporter:    fmt.Sprintf("user%d", 1+rng.Intn(100)),
		},
	}
}

func randomDescription(rng *rand.Rand) string {
	group := ticketTemplates[rng.Intn(len(ticketTemplates))]
	return group.descriptions[rng.Intn(len(group.descriptions))]
}

func randomCreated(rng *rand.Rand) string {
	age := time.Duration(rng.Intn(8))*24*time.Hour + time.Duration(rng.Intn(24))*time.Hour
	return time.Now().Add(-age).Format(time.RFC3339)
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}
