package brief

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrJobFailed    = errors.New("synthesis job failed")
	ErrJobCancelled = errors.New("synthesis job cancelled")
	ErrNoArticles   = errors.New("no articles to synthesize")
)

// Failure carries the per-attempt history when a job exhausts its
// retries. It wraps ErrJobFailed so callers can match with errors.Is.
type Failure struct {
	Reason   string
	Attempts []AttemptRecord
}

func (f *Failure) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%v after %d attempts: %s", ErrJobFailed, len(f.Attempts), f.Reason)
	for _, a := range f.Attempts {
		fmt.Fprintf(&sb, "; attempt %d: %s", a.Attempt, a.Outcome)
		if a.Failure != "" {
			fmt.Fprintf(&sb, " (%s)", a.Failure)
		}
	}
	return sb.String()
}

func (f *Failure) Unwrap() error { return ErrJobFailed }
