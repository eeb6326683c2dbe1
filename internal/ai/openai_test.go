package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/triage-ai/backend/internal/models"
)

func chatServer(t *testing.T, content string, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth, got %q", r.Header.Get("Authorization"))
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if rf, ok := req["response_format"].(map[string]any); !ok || rf["type"] != "json_object" {
			t.Errorf("expected json_object response format, got %v", req["response_format"])
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIClassify(t *testing.T) {
	content := `{"category":"Network","priority":"High","required_skills":["Network","Security"],"summary":"VPN outage for remote workers"}`
	srv := chatServer(t, content, nil)
	defer srv.Close()

	c := OpenAIClassifier{BaseURL: srv.URL, APIKey: "test-key"}
	e, _, err := c.Classify(context.Background(), snTicket("VPN down", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Category != "Network" || e.Priority != "High" {
		t.Fatalf("unexpected enrichment %+v", e)
	}
	if e.Skills != "Network, Security" {
		t.Fatalf("expected joined skills, got %q", e.Skills)
	}
	if e.Method != MethodOpenAI {
		t.Fatalf("unexpected method %q", e.Method)
	}
}

func TestOpenAIClassifyFieldDefaults(t *testing.T) {
	srv := chatServer(t, `{}`, nil)
	defer srv.Close()

	c := OpenAIClassifier{BaseURL: srv.URL, APIKey: "test-key"}
	e, _, err := c.Classify(context.Background(), snTicket("Mystery ticket", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Category != "Other" || e.Priority != "Medium" || e.Skills != "Other" {
		t.Fatalf("expected defaults, got %+v", e)
	}
	if e.Summary != "Mystery ticket" {
		t.Fatalf("expected summary to default to title, got %q", e.Summary)
	}
}

func TestOpenAIClassifyMalformedAnswer(t *testing.T) {
	srv := chatServer(t, "sure, here is my analysis", nil)
	defer srv.Close()

	c := OpenAIClassifier{BaseURL: srv.URL, APIKey: "test-key"}
	if _, _, err := c.Classify(context.Background(), snTicket("x", "")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestOpenAIClassifyRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := OpenAIClassifier{BaseURL: srv.URL, APIKey: "test-key"}
	_, _, err := c.Classify(context.Background(), snTicket("x", ""))
	var rl RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
}

func TestOpenAIClassifyMissingKey(t *testing.T) {
	c := OpenAIClassifier{BaseURL: "http://localhost:1", APIKey: ""}
	if _, _, err := c.Classify(context.Background(), snTicket("x", "")); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestOpenAIClassifyUsesCache(t *testing.T) {
	calls := 0
	content := `{"category":"Backend","priority":"Low","required_skills":["Backend"],"summary":"s"}`
	srv := chatServer(t, content, &calls)
	defer srv.Close()

	c := OpenAIClassifier{BaseURL: srv.URL, APIKey: "test-key", Cache: NewMemoryCache(time.Minute)}
	tk := snTicket("API latency report", "")
	if _, _, err := c.Classify(context.Background(), tk); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	e, _, err := c.Classify(context.Background(), tk)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls)
	}
	if e.Category != "Backend" {
		t.Fatalf("unexpected cached enrichment %+v", e)
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCache(client, time.Minute)

	ctx := context.Background()
	e := models.Enrichment{Category: "Network", Priority: "High", Skills: "Network", Summary: "s", Method: MethodOpenAI}
	cache.Set(ctx, "triage:enrichment:abc", e)

	got, ok := cache.Get(ctx, "triage:enrichment:abc")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got != e {
		t.Fatalf("expected %+v, got %+v", e, got)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok := cache.Get(ctx, "triage:enrichment:abc"); ok {
		t.Fatalf("expected entry to expire")
	}
}
