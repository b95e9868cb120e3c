package catalog

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// NodeResult is the outcome of one declaration.
type NodeResult struct {
	Tag      string
	Line     int
	Script   string
	Function string
	Outcome  Outcome
	Err      error
}

// Report describes one load of a catalog.
type Report struct {
	// Generation identifies the load. Every Load gets a new one.
	Generation string
	Catalog    string
	Document   string
	Started    time.Time
	Duration   time.Duration

	// Nodes are in document order.
	Nodes []NodeResult

	// HookCalled is set when the library defined the load hook and it ran.
	HookCalled bool
}

func newReport(catalog, document string) *Report {
	return &Report{
		Generation: uuid.NewString(),
		Catalog:    catalog,
		Document:   document,
		Started:    time.Now(),
	}
}

// Count returns the number of nodes with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, node := range r.Nodes {
		if node.Outcome == o {
			n++
		}
	}
	return n
}

// Registered returns the number of registered events.
func (r *Report) Registered() int {
	return r.Count(OutcomeRegistered)
}

// Failed returns the number of discarded events.
func (r *Report) Failed() int {
	n := 0
	for _, node := range r.Nodes {
		if node.Outcome.Failed() {
			n++
		}
	}
	return n
}

// Summary returns a one-line summary.
func (r *Report) Summary() string {
	return fmt.Sprintf("%s: %d registered, %d failed, %d skipped (%s)",
		r.Catalog, r.Registered(), r.Failed(), r.Count(OutcomeSkipped), r.Duration.Round(time.Millisecond))
}

// WriteTo writes the summary and every failed node to w.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var total int64
	n, err := fmt.Fprintln(w, r.Summary())
	total += int64(n)
	if err != nil {
		return total, err
	}

	for _, node := range r.Nodes {
		if !node.Outcome.Failed() {
			continue
		}
		n, err = fmt.Fprintf(w, "  line %d <%s>: %s: %v\n", node.Line, node.Tag, node.Outcome, node.Err)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
