package crud

import (
	"context"
	"errors"

	"github.com/studiowebux/halcrud/internal/executor"
	"github.com/studiowebux/halcrud/internal/types"
)

// Outcome is the result of an edit or delete attempt
type Outcome int

const (
	// OutcomeSkipped means nothing was sent: a guard failed or the user declined
	OutcomeSkipped Outcome = iota
	// OutcomeApplied means the server accepted the operation
	OutcomeApplied
	// OutcomeGone means the entity no longer exists; the list was refreshed
	OutcomeGone
	// OutcomeConflict means the entity changed since it was read; the list was refreshed
	OutcomeConflict
	// OutcomeFailed means any other failure; the error is returned alongside
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeApplied:
		return "applied"
	case OutcomeGone:
		return "gone"
	case OutcomeConflict:
		return "conflict"
	default:
		return "failed"
	}
}

// classify maps a transport error onto the recovery it calls for
func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeApplied
	case executor.IsNotFound(err):
		return OutcomeGone
	case executor.IsConflict(err):
		return OutcomeConflict
	default:
		return OutcomeFailed
	}
}

// ErrorInfo is the debug summary of a failed operation
type ErrorInfo struct {
	Message string      `json:"message"`
	Status  int         `json:"status,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func errInfo(err error) *ErrorInfo {
	info := &ErrorInfo{Message: err.Error(), Status: executor.StatusOf(err)}
	var apiErr *executor.APIError
	if errors.As(err, &apiErr) {
		info.Data = apiErr.Data
	}
	return info
}

var goneInfo = &ErrorInfo{Message: "already deleted", Status: 404, Data: "already deleted"}

// Prompter is the UI collaborator for confirmations and recovery alerts
type Prompter interface {
	Confirm(ctx context.Context, message string) (bool, error)
	Alert(ctx context.Context, message string)
}

// Recorder persists a record of every traced operation
type Recorder interface {
	Record(ctx context.Context, entry types.HistoryEntry) error
}

// declinePrompter is used when no Prompter is configured: it declines every confirmation
type declinePrompter struct{}

func (declinePrompter) Confirm(context.Context, string) (bool, error) { return false, nil }

func (declinePrompter) Alert(context.Context, string) {}
