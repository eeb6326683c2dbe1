package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/triage-ai/backend/internal/models"
)

const (
	defaultJQL     = "status != Done AND status != Closed"
	jiraFieldNames = "summary,description,priority,status,created,issuetype,reporter,assignee"
)

// JiraSource pulls issues from the Jira Cloud v3 search API.
type JiraSource struct {
	ServerURL  string
	Email      string
	APIToken   string
	JQL        string
	MaxResults int
	Client     *http.Client
}

type jiraIssue struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	Fields jiraIssueFields `json:"fields"`
}

type jiraIssueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"`
	Priority    *jiraNamed      `json:"priority"`
	Status      *jiraNamed      `json:"status"`
	Created     string          `json:"created"`
	IssueType   *jiraNamed      `json:"issuetype"`
	Reporter    *jiraPerson     `json:"reporter"`
	Assignee    *jiraPerson     `json:"assignee"`
}

type jiraNamed struct {
	Name string `json:"name"`
}

type jiraPerson struct {
	DisplayName string `json:"displayName"`
}

func (j *JiraSource) Name() string { return models.SourceJira }

func (j *JiraSource) FetchTickets(ctx context.Context) ([]models.Ticket, error) {
	j.applyDefaults()

	endpoint := strings.TrimRight(j.ServerURL, "/") + "/rest/api/3/search"
	params := url.Values{}
	params.Set("jql", j.JQL)
	params.Set("maxResults", strconv.Itoa(j.MaxResults))
	params.Set("fields", jiraFieldNames)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(j.Email, j.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := j.Client.Do(req)
	if err != nil {
		return nil, transportError(models.SourceJira, "fetch", j.ServerURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, j.statusError("fetch", resp.StatusCode)
	}

	var body struct {
		Issues []jiraIssue `json:"issues"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("jira response decode: %w", err)
	}

	tickets := make([]models.Ticket, 0, len(body.Issues))
	for _, issue := range body.Issues {
		fields := issue.Fields
		tickets = append(tickets, models.Ticket{
			Source: models.SourceJira,
			Jira: &models.JiraFields{
				ID:          issue.ID,
				Key:         issue.Key,
				Summary:     fields.Summary,
				Description: decodeJiraDescription(fields.Description),
				Priority:    namedOrDefault(fields.Priority, "Medium"),
				Status:      namedOrDefault(fields.Status, "Open"),
				Created:     fields.Created,
				IssueType:   namedOrDefault(fields.IssueType, "Task"),
				Reporter:    displayName(fields.Reporter),
				Assignee:    displayName(fields.Assignee),
			},
		})
	}
	return tickets, nil
}

// UpdateTicket puts field updates on a single issue, e.g.
// {"assignee": {"accountId": ...}}.
func (j *JiraSource) UpdateTicket(ctx context.Context, issueKey string, fields map[string]any) error {
	payload := map[string]any{"fields": fields}
	return j.send(ctx, http.MethodPut, "/rest/api/3/issue/"+issueKey, "update", payload)
}

// AddComment posts a plain-text comment wrapped in the v3 document format.
func (j *JiraSource) AddComment(ctx context.Context, issueKey string, comment string) error {
	payload := map[string]any{
		"body": map[string]any{
			"type":    "doc",
			"version": 1,
			"content": []map[string]any{{
				"type": "paragraph",
				"content": []map[string]any{{
					"type": "text",
					"text": comment,
				}},
			}},
		},
	}
	return j.send(ctx, http.MethodPost, "/rest/api/3/issue/"+issueKey+"/comment", "comment", payload)
}

func (j *JiraSource) send(ctx context.Context, method, path, op string, payload any) error {
	j.applyDefaults()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(j.ServerURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(j.Email, j.APIToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.Client.Do(req)
	if err != nil {
		return transportError(models.SourceJira, op, j.ServerURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return j.statusError(op, resp.StatusCode)
	}
	return nil
}

func (j *JiraSource) applyDefaults() {
	if j.Client == nil {
		j.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if j.JQL == "" {
		j.JQL = defaultJQL
	}
	if j.MaxResults <= 0 {
		j.MaxResults = 100
	}
}

func (j *JiraSource) statusError(op string, status int) *APIError {
	reason := "unexpected response"
	switch status {
	case http.StatusUnauthorized:
		reason = "invalid credentials, check email and API token"
	case http.StatusForbidden:
		reason = "access forbidden, check API token permissions"
	case http.StatusNotFound:
		reason = "endpoint not found, verify the server URL"
	}
	return &APIError{Source: models.SourceJira, Op: op, Status: status, Reason: reason}
}

// Jira Cloud returns rich-text descriptions as an Atlassian document tree.
// Flatten it to the text nodes; older servers still send a plain string.
func decodeJiraDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	var doc jiraDocNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	return strings.TrimSpace(strings.Join(docText(doc), "\n"))
}

type jiraDocNode struct {
	Text    string        `json:"text"`
	Content []jiraDocNode `json:"content"`
}

func docText(node jiraDocNode) []string {
	var parts []string
	if node.Text != "" {
		parts = append(parts, node.Text)
	}
	for _, child := range node.Content {
		parts = append(parts, docText(child)...)
	}
	return parts
}

func namedOrDefault(n *jiraNamed, fallback string) string {
	if n == nil || n.Name == "" {
		return fallback
	}
	return n.Name
}

func displayName(p *jiraPerson) string {
	if p == nil {
		return ""
	}
	return p.DisplayName
}
