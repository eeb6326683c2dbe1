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

const defaultServiceNowQuery = "state!=6^state!=7"

// ServiceNowSource pulls incident records from the ServiceNow table API.
type ServiceNowSource struct {
	InstanceURL string
	Username    string
	Password    string
	Table       string
	Limit       int
	Query       string
	Client      *http.Client
}

type serviceNowRecord struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	State            string `json:"state"`
	CreatedOn        string `json:"sys_created_on"`
	Category         string `json:"category"`
	CallerID         string `json:"caller_id"`
	AssignedTo       string `json:"assigned_to"`
}

func (s *ServiceNowSource) Name() string { return models.SourceServiceNow }

func (s *ServiceNowSource) FetchTickets(ctx context.Context) ([]models.Ticket, error) {
	s.applyDefaults()

	endpoint := fmt.Sprintf("%s/api/now/table/%s", strings.TrimRight(s.InstanceURL, "/"), s.Table)
	params := url.Values{}
	params.Set("sysparm_limit", strconv.Itoa(s.Limit))
	params.Set("sysparm_display_value", "true")
	params.Set("sysparm_query", s.Query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.Username, s.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, transportError(models.SourceServiceNow, "fetch", s.InstanceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, s.statusError("fetch", resp.StatusCode)
	}

	var body struct {
		Result []serviceNowRecord `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("servicenow response decode: %w", err)
	}

	tickets := make([]models.Ticket, 0, len(body.Result))
	for _, rec := range body.Result {
		tickets = append(tickets, models.Ticket{
			Source: models.SourceServiceNow,
			ServiceNow: &models.ServiceNowFields{
				SysID:            rec.SysID,
				Number:           rec.Number,
				ShortDescription: rec.ShortDescription,
				Description:      rec.Description,
				Priority:         rec.Priority,
				State:            rec.State,
				Category:         rec.Category,
				CreatedOn:        rec.CreatedOn,
				CallerID:         rec.CallerID,
				AssignedTo:       rec.AssignedTo,
			},
		})
	}
	return tickets, nil
}

// UpdateTicket patches fields on a single incident, e.g. assigned_to after
// triage wrote an assignment back.
func (s *ServiceNowSource) UpdateTicket(ctx context.Context, sysID string, fields map[string]any) error {
	s.applyDefaults()

	endpoint := fmt.Sprintf("%s/api/now/table/%s/%s", strings.TrimRight(s.InstanceURL, "/"), s.Table, sysID)
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.Username, s.Password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return transportError(models.SourceServiceNow, "update", s.InstanceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.statusError("update", resp.StatusCode)
	}
	return nil
}

// AddComment records a triage note on the incident's work notes journal.
func (s *ServiceNowSource) AddComment(ctx context.Context, sysID string, comment string) error {
	return s.UpdateTicket(ctx, sysID, map[string]any{"work_notes": comment})
}

func (s *ServiceNowSource) applyDefaults() {
	if s.Client == nil {
		s.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if s.Table == "" {
		s.Table = "incident"
	}
	if s.Limit <= 0 {
		s.Limit = 100
	}
	if s.Query == "" {
		s.Query = defaultServiceNowQuery
	}
}

func (s *ServiceNowSource) statusError(op string, status int) *APIError {
	reason := "unexpected response"
	switch status {
	case http.StatusUnauthorized:
		reason = "invalid credentials"
	case http.StatusForbidden:
		reason = "access forbidden, check API permissions"
	case http.StatusNotFound:
		reason = "endpoint not found, verify the instance URL"
	}
	return &APIError{Source: models.SourceServiceNow, Op: op, Status: status, Reason: reason}
}
