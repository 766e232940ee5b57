package run

import (
	"time"

	"caseport/internal/sequence"
)

// CaseStatus classifies the outcome of one case.
type CaseStatus string

const (
	CaseSucceeded             CaseStatus = "succeeded"
	CaseSucceededWithWarnings CaseStatus = "succeeded-with-warnings"
	CaseFailed                CaseStatus = "failed"
)

// Status classifies the outcome of a whole run.
type Status string

const (
	StatusSucceeded             Status = "succeeded"
	StatusSucceededWithWarnings Status = "succeeded-with-warnings"
	StatusFailed                Status = "failed"
)

// CaseResult records the outcome of one case in a run.
type CaseResult struct {
	CaseID int64
	Title  string
	// Output is the written path relative to the output root. Empty for
	// failed cases.
	Output string
	// MissingAssets lists the URLs of assets that could not be fetched
	// for an otherwise successful case.
	MissingAssets []string
	// Links records how this case's sequence redirects resolved.
	Links []sequence.Link
	Err   error
}

// Status classifies this case's outcome.
func (r *CaseResult) Status() CaseStatus {
	switch {
	case r.Err != nil:
		return CaseFailed
	case len(r.MissingAssets) > 0:
		return CaseSucceededWithWarnings
	default:
		return CaseSucceeded
	}
}

// Report summarizes a completed run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Cases    []*CaseResult
}

// Status classifies the run: failed when nothing was written, succeeded
// with warnings when any case failed or came out incomplete.
func (rep *Report) Status() Status {
	if len(rep.Cases) == 0 {
		return StatusFailed
	}
	clean, failed := 0, 0
	for _, res := range rep.Cases {
		switch res.Status() {
		case CaseSucceeded:
			clean++
		case CaseFailed:
			failed++
		}
	}
	switch {
	case failed == len(rep.Cases):
		return StatusFailed
	case clean == len(rep.Cases):
		return StatusSucceeded
	default:
		return StatusSucceededWithWarnings
	}
}

// Counts returns how many cases succeeded, succeeded with warnings, and
// failed.
func (rep *Report) Counts() (succeeded, warned, failed int) {
	for _, res := range rep.Cases {
		switch res.Status() {
		case CaseSucceeded:
			succeeded++
		case CaseSucceededWithWarnings:
			warned++
		default:
			failed++
		}
	}
	return succeeded, warned, failed
}
