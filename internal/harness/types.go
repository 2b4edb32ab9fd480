package harness

import (
	"github.com/roach88/chessdb/internal/view"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion and property check held.
	Pass bool `json:"pass"`

	// Seq is the last log position folded into Index.
	Seq int64 `json:"seq"`

	// Index is the final game index.
	Index view.Index `json:"-"`

	// Errors contains assertion and property failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Index:  view.NewIndex(),
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
