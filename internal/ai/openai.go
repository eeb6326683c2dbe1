package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/triage-ai/backend/internal/models"
)

const defaultModel = "gpt-5"

// OpenAIClassifier calls an OpenAI-compatible chat completions endpoint.
// Every transport or parse failure is returned to the caller, which is
// expected to fall back to the rule classifier for that ticket.
type OpenAIClassifier struct {
	BaseURL   string
	Model     string
	APIKey    string
	MaxTokens int
	Cache     Cache
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}

func (c OpenAIClassifier) Method() string { return MethodOpenAI }

func (c OpenAIClassifier) Classify(ctx context.Context, t models.Ticket) (models.Enrichment, int64, error) {
	start := time.Now()
	if strings.TrimSpace(c.APIKey) == "" {
		return models.Enrichment{}, 0, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	model := strings.TrimSpace(c.Model)
	if model == "" {
		model = defaultModel
	}

	title := t.Title()
	body := t.Body()

	key := cacheKey(model, title, body)
	if c.Cache != nil {
		if e, ok := c.Cache.Get(ctx, key); ok {
			return e, time.Since(start).Milliseconds(), nil
		}
	}

	prompt := fmt.Sprintf(`Analyze this support ticket and provide a structured response in JSON format.

Ticket Summary: %s
Full Description: %s

Please categorize this ticket and provide the following information:
1. category: Choose ONE from [%s]
2. priority: Choose ONE from [High, Medium, Low]
3. required_skills: List 1-3 skills needed (e.g., Network, Database, DevOps, Security, Frontend, Backend, Access)
4. summary: A concise 1-2 sentence summary for engineer assignment

Respond with JSON in this exact format:
{"category": "category_name", "priority": "priority_level", "required_skills": ["skill1", "skill2"], "summary": "brief summary"}`,
		title, body, strings.Join(Categories, ", "))

	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	payload := struct {
		Model               string         `json:"model"`
		Messages            []msg          `json:"messages"`
		ResponseFormat      map[string]any `json:"response_format"`
		MaxCompletionTokens int            `json:"max_completion_tokens"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: "You are an expert IT support ticket triage agent. Analyze tickets and categorize them accurately."},
			{Role: "user", Content: prompt},
		},
		ResponseFormat:      map[string]any{"type": "json_object"},
		MaxCompletionTokens: maxTokens,
	}

	b, _ := json.Marshal(payload)
	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return models.Enrichment{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	timeout := 45 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Enrichment{}, time.Since(start).Milliseconds(), fmt.Errorf("model request timed out")
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return models.Enrichment{}, time.Since(start).Milliseconds(), fmt.Errorf("model request timed out")
		}
		return models.Enrichment{}, time.Since(start).Milliseconds(), fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			if d := extractRetryAfter(errBody); d > 0 {
				return models.Enrichment{}, time.Since(start).Milliseconds(), RateLimitError{RetryAfter: d}
			}
			return models.Enrichment{}, time.Since(start).Milliseconds(), RateLimitError{}
		}
		return models.Enrichment{}, time.Since(start).Milliseconds(), fmt.Errorf("model http error: %s: %v", resp.Status, errBody)
	}

	var res struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return models.Enrichment{}, time.Since(start).Milliseconds(), err
	}
	if len(res.Choices) == 0 {
		return models.Enrichment{}, time.Since(start).Milliseconds(), fmt.Errorf("empty model response")
	}

	e, err := parseEnrichment(res.Choices[0].Message.Content, title)
	if err != nil {
		return models.Enrichment{}, time.Since(start).Milliseconds(), err
	}
	if c.Cache != nil {
		c.Cache.Set(ctx, key, e)
	}
	return e, time.Since(start).Milliseconds(), nil
}

// parseEnrichment reads the model's JSON answer. Missing fields get
// defaults; a malformed document is an error so the caller can fall back.
func parseEnrichment(content, title string) (models.Enrichment, error) {
	if strings.TrimSpace(content) == "" {
		content = "{}"
	}
	var out struct {
		Category       string   `json:"category"`
		Priority       string   `json:"priority"`
		RequiredSkills []string `json:"required_skills"`
		Summary        string   `json:"summary"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return models.Enrichment{}, fmt.Errorf("model answer is not valid JSON: %w", err)
	}
	if out.Category == "" {
		out.Category = "Other"
	}
	if out.Priority == "" {
		out.Priority = "Medium"
	}
	if len(out.RequiredSkills) == 0 {
		out.RequiredSkills = []string{"Other"}
	}
	if out.Summary == "" {
		out.Summary = title
	}
	return models.Enrichment{
		Category: out.Category,
		Priority: out.Priority,
		Skills:   strings.Join(out.RequiredSkills, ", "),
		Summary:  out.Summary,
		Method:   MethodOpenAI,
	}, nil
}

func extractRetryAfter(errBody map[string]any) time.Duration {
	errObj, ok := errBody["error"].(map[string]any)
	if !ok {
		return 0
	}
	details, ok := errObj["details"].([]any)
	if !ok {
		return 0
	}
	for _, d := range details {
		m, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := m["@type"].(string); ok && strings.Contains(t, "RetryInfo") {
			if s, ok := m["retryDelay"].(string); ok {
				if dur, err := time.ParseDuration(s); err == nil {
					return dur
				}
			}
		}
	}
	return 0
}
