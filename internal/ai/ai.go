package ai

import (
	"context"

	"github.com/triage-ai/backend/internal/models"
)

// Method tags stamped into triage_method by each classifier backend.
const (
	MethodRule   = "Mock Rule-Based"
	MethodOpenAI = "OpenAI GPT-5"
)

// Classifier enriches one ticket. Classify reports wall-clock latency in
// milliseconds; Method returns the tag this backend stamps into
// triage_method.
type Classifier interface {
	Method() string
	Classify(ctx context.Context, t models.Ticket) (models.Enrichment, int64, error)
}
