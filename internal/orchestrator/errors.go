package orchestrator

import (
	"fmt"

	"github.com/miclabs/posthunter/internal/quality"
)

// RejectedError reports an account whose retry budget was exhausted without
// a passing candidate. Carried in the account result; other accounts keep
// running.
type RejectedError struct {
	Account   string
	Attempts  int
	LastScore quality.Score
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("no candidate passed quality gate for %s after %d attempts (last score %d)",
		e.Account, e.Attempts, e.LastScore.Total)
}
