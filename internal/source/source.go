package source

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/triage-ai/backend/internal/models"
)

// Source produces normalized tickets for the triage pipeline. Remote
// adapters must leave every ai_* enrichment field empty and surface
// transport failures as *APIError so the orchestrator can drop a single
// source's contribution without aborting the batch.
type Source interface {
	Name() string
	FetchTickets(ctx context.Context) ([]models.Ticket, error)
}

// APIError is the one error shape remote adapters return for HTTP and
// transport failures. Status is zero when the request never produced a
// response.
type APIError struct {
	Source string
	Op     string
	Status int
	Reason string
	Err    error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s failed: http %d: %s", e.Source, e.Op, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Source, e.Op, e.Reason)
}

func (e *APIError) Unwrap() error { return e.Err }

func transportError(sourceName, op, target string, err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Source: sourceName, Op: op, Reason: "request timed out", Err: err}
	}
	return &APIError{Source: sourceName, Op: op, Reason: "cannot reach " + target, Err: err}
}
