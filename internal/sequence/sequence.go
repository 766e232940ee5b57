// Package sequence links cases downloaded from the same sequence: the
// end-of-case redirect in each emitted document is repointed at the local
// output of the case it leads to.
package sequence

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"caseport/internal/aao"
	"caseport/internal/rewrite"
)

// State of one directed case pair.
type State string

const (
	// StateUnlinked pairs keep the live redirect; the target case is
	// not part of this run's output.
	StateUnlinked State = "unlinked"
	// StateLinked pairs redirect to the target's local output.
	StateLinked State = "linked"
)

// Pair is a directed edge between two cases of a sequence.
type Pair struct {
	From int64
	To   int64
}

// Link is the resolution of one pair.
type Link struct {
	Pair
	State State
}

// SequenceError reports inconsistent sequence data. It is logged and
// skipped, never fatal: a broken sequence still yields a playable case.
type SequenceError struct {
	CaseID int64
	Reason string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("sequence data for case %d: %s", e.CaseID, e.Reason)
}

// redirectPattern matches the player's end-of-case redirect: a live URL
// built from the follow-up trial ID plus the carried-over save payload.
var redirectPattern = regexp.MustCompile(
	`window\.location\.href\s*=\s*'trial\.php\?trial_id='\s*\+\s*([\w.$\[\]]+)\s*\+\s*'\?([^\n]*);`)

// Linker resolves sequence pairs for one run. Each pair is visited at
// most once, so cyclic sequences re-link as no-ops.
type Linker struct {
	// SingleFile output lives next to the other cases; directory output
	// is one level below the output root.
	SingleFile bool
	Logger     *slog.Logger

	visited map[Pair]State
}

func NewLinker(singleFile bool, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Linker{SingleFile: singleFile, Logger: logger, visited: make(map[Pair]State)}
}

// Resolve links the document's redirect against the run's output set.
// outputs maps case IDs to output paths relative to the output root. The
// document is modified in place; the returned links record the state of
// every pair leaving this case.
func (l *Linker) Resolve(doc *rewrite.Document, seq *aao.Sequence, outputs map[int64]string) []Link {
	if seq == nil || len(seq.List) == 0 {
		return nil
	}

	var links []Link
	targets := make(map[int64]string)
	seen := make(map[int64]bool)
	for _, entry := range seq.List {
		if entry.ID <= 0 {
			l.Logger.Warn("skipping broken sequence entry",
				slog.Any("error", &SequenceError{CaseID: doc.CaseID, Reason: fmt.Sprintf("entry %q has no valid id", entry.Title)}))
			continue
		}
		if entry.ID == doc.CaseID {
			continue
		}
		if seen[entry.ID] {
			l.Logger.Warn("skipping broken sequence entry",
				slog.Any("error", &SequenceError{CaseID: doc.CaseID, Reason: fmt.Sprintf("case %d listed twice", entry.ID)}))
			continue
		}
		seen[entry.ID] = true

		pair := Pair{From: doc.CaseID, To: entry.ID}
		if state, ok := l.visited[pair]; ok {
			links = append(links, Link{Pair: pair, State: state})
			continue
		}
		state := StateUnlinked
		if path, ok := outputs[entry.ID]; ok {
			state = StateLinked
			targets[entry.ID] = l.relativePath(path)
		}
		l.visited[pair] = state
		links = append(links, Link{Pair: pair, State: state})
	}

	if len(targets) == 0 {
		return links
	}
	l.rewriteRedirect(doc, targets)
	return links
}

// relativePath makes an output-root-relative path resolvable from the
// case's own document, so a downloaded set of cases can be moved as one.
func (l *Linker) relativePath(path string) string {
	if l.SingleFile {
		return path
	}
	return "../" + path
}

// rewriteRedirect replaces the live redirect with a switch over the
// locally available targets. Targets outside the run's output keep the
// player from silently dead-ending by alerting instead.
func (l *Linker) rewriteRedirect(doc *rewrite.Document, targets map[int64]string) {
	m := redirectPattern.FindStringSubmatchIndex(doc.HTML)
	if m == nil {
		l.Logger.Warn("redirect not found in document, sequence links skipped",
			slog.Int64("case_id", doc.CaseID))
		return
	}
	target := doc.HTML[m[2]:m[3]]
	save := doc.HTML[m[4]:m[5]]

	var b strings.Builder
	fmt.Fprintf(&b, "switch (Number.parseInt(%s)) {\n", target)
	for _, id := range sortedIDs(targets) {
		path := strings.ReplaceAll(targets[id], `'`, `\'`)
		fmt.Fprintf(&b, "case %d: window.location.href = '%s' + '?%s;\nbreak;\n", id, path, save)
	}
	b.WriteString("default: window.alert('The next case is not part of this offline copy. Download the sequence together to keep its entries connected.');\n}")

	doc.HTML = doc.HTML[:m[0]] + b.String() + doc.HTML[m[1]:]
}

func sortedIDs(targets map[int64]string) []int64 {
	ids := make([]int64, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
