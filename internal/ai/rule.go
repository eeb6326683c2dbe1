package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/triage-ai/backend/internal/models"
)

// RuleClassifier matches ticket text against fixed keyword lists. It is
// total: every input yields a complete enrichment and a nil error.
type RuleClassifier struct{}

func (RuleClassifier) Method() string { return MethodRule }

func (RuleClassifier) Classify(ctx context.Context, t models.Ticket) (models.Enrichment, int64, error) {
	start := time.Now()
	text := strings.ToLower(t.Title() + " " + t.Body())

	category := "Other"
	bestCount := 0
	for _, cat := range Categories {
		count := 0
		for _, kw := range CategoryKeywords[cat] {
			if strings.Contains(text, kw) {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			category = cat
		}
	}

	priority := "Medium"
	for _, tier := range PriorityTiers {
		if containsAny(text, PriorityKeywords[tier]) {
			priority = tier
			break
		}
	}

	skills, ok := CategorySkills[category]
	if !ok {
		skills = []string{"Other"}
	}

	e := models.Enrichment{
		Category: category,
		Priority: priority,
		Skills:   strings.Join(skills, ", "),
		Summary:  fmt.Sprintf("%s issue: %s...", category, truncate(t.Title(), 80)),
		Method:   MethodRule,
	}
	return e, time.Since(start).Milliseconds(), nil
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
