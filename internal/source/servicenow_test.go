package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/triage-ai/backend/internal/models"
)

func TestServiceNowFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/now/table/incident" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("sysparm_limit") != "50" {
			t.Errorf("unexpected sysparm_limit: %s", q.Get("sysparm_limit"))
		}
		if q.Get("sysparm_display_value") != "true" {
			t.Errorf("unexpected sysparm_display_value: %s", q.Get("sysparm_display_value"))
		}
		if q.Get("sysparm_query") != "state!=6^state!=7" {
			t.Errorf("unexpected sysparm_query: %s", q.Get("sysparm_query"))
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc" || pass != "secret" {
			t.Errorf("unexpected basic auth: %q %q", user, pass)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"result":[{"sys_id":"abc123","number":"INC0001","short_description":"VPN down","description":"VPN tunnel drops every hour","priority":"2","state":"1","sys_created_on":"2025-01-01 10:00:00","category":"network","caller_id":"user1@company.com","assigned_to":""}]}`)
	}))
	defer srv.Close()

	src := &ServiceNowSource{InstanceURL: srv.URL, Username: "svc", Password: "secret", Limit: 50}
	tickets, err := src.FetchTickets(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(tickets))
	}
	tk := tickets[0]
	if tk.Source != models.SourceServiceNow {
		t.Fatalf("unexpected source: %s", tk.Source)
	}
	if tk.ServiceNow.SysID != "abc123" || tk.ServiceNow.Number != "INC0001" {
		t.Fatalf("unexpected identifiers: %+v", tk.ServiceNow)
	}
	if tk.ServiceNow.CreatedOn != "2025-01-01 10:00:00" {
		t.Fatalf("unexpected created_on: %s", tk.ServiceNow.CreatedOn)
	}
	if tk.Key() != "INC0001" || tk.Title() != "VPN down" {
		t.Fatalf("unexpected key/title: %s / %s", tk.Key(), tk.Title())
	}
	if tk.AICategory != "" || tk.AssignedEngineer != "" {
		t.Fatalf("fetch must not populate triage fields: %+v", tk)
	}
}

func TestServiceNowStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{http.StatusUnauthorized, "invalid credentials"},
		{http.StatusForbidden, "permissions"},
		{http.StatusNotFound, "instance URL"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		src := &ServiceNowSource{InstanceURL: srv.URL}
		_, err := src.FetchTickets(context.Background())
		srv.Close()

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: expected *APIError, got %v", tc.status, err)
		}
		if apiErr.Status != tc.status {
			t.Fatalf("expected status %d, got %d", tc.status, apiErr.Status)
		}
		if !strings.Contains(apiErr.Reason, tc.want) {
			t.Fatalf("status %d: reason %q does not mention %q", tc.status, apiErr.Reason, tc.want)
		}
	}
}

func TestServiceNowUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	src := &ServiceNowSource{InstanceURL: srv.URL}
	_, err := src.FetchTickets(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != 0 {
		t.Fatalf("expected no http status, got %d", apiErr.Status)
	}
	if !strings.Contains(apiErr.Reason, "cannot reach") {
		t.Fatalf("unexpected reason: %s", apiErr.Reason)
	}
}

func TestServiceNowTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	src := &ServiceNowSource{InstanceURL: srv.URL, Client: &http.Client{Timeout: 20 * time.Millisecond}}
	_, err := src.FetchTickets(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Reason != "request timed out" {
		t.Fatalf("unexpected reason: %s", apiErr.Reason)
	}
}

func TestServiceNowUpdateTicket(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"result":{}}`)
	}))
	defer srv.Close()

	src := &ServiceNowSource{InstanceURL: srv.URL}
	err := src.UpdateTicket(context.Background(), "abc123", map[string]any{"assigned_to": "Alice Chen", "state": "2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/api/now/table/incident/abc123" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if gotBody["assigned_to"] != "Alice Chen" || gotBody["state"] != "2" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestServiceNowAddComment(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"result":{}}`)
	}))
	defer srv.Close()

	src := &ServiceNowSource{InstanceURL: srv.URL}
	if err := src.AddComment(context.Background(), "abc123", "Routed to Alice Chen by triage"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody["work_notes"] != "Routed to Alice Chen by triage" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}
