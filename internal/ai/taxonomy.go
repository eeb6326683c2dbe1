package ai

// Categories in evaluation order. Order matters: keyword-count ties resolve
// to the earliest category.
var Categories = []string{
	"Network",
	"Database",
	"DevOps",
	"Security",
	"Frontend",
	"Backend",
	"Access",
	"Other",
}

var CategoryKeywords = map[string][]string{
	"Network":  {"vpn", "network", "firewall", "dns", "latency", "switch", "router", "connection"},
	"Database": {"database", "sql", "postgresql", "mysql", "mongodb", "query", "replication"},
	"DevOps":   {"ci/cd", "pipeline", "kubernetes", "docker", "jenkins", "terraform", "deployment"},
	"Security": {"security", "ssl", "certificate", "vulnerability", "unauthorized", "mfa", "login"},
	"Frontend": {"frontend", "website", "css", "javascript", "mobile", "browser", "ui"},
	"Backend":  {"api", "backend", "server", "endpoint", "payment", "email", "session"},
	"Access":   {"access", "permission", "credentials", "password", "account", "privileges"},
	"Other":    {"printer", "laptop", "license", "inquiry", "policy"},
}

// PriorityTiers in precedence order; the first tier with any keyword hit wins.
var PriorityTiers = []string{"High", "Medium", "Low"}

var PriorityKeywords = map[string][]string{
	"High":   {"critical", "down", "outage", "urgent", "production", "security", "vulnerability"},
	"Medium": {"slow", "intermittent", "warning", "issue", "problem"},
	"Low":    {"request", "inquiry", "question", "enhancement"},
}

// CategorySkills maps each category to the skills a ticket of that category
// requires of its engineer.
var CategorySkills = map[string][]string{
	"Network":  {"Network", "Security"},
	"Database": {"Database", "Backend"},
	"DevOps":   {"DevOps", "Backend"},
	"Security": {"Security", "Network"},
	"Frontend": {"Frontend"},
	"Backend":  {"Backend", "Database"},
	"Access":   {"Access", "Security"},
	"Other":    {"DevOps", "Backend"},
}
