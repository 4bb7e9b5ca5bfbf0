package result

import (
	"fmt"
	"io"
	"sort"
)

// SummaryEntry is one line of the case execution summary.
type SummaryEntry struct {
	Key     string
	Outcome Outcome
	Author  string
	Title   string
}

func (e SummaryEntry) String() string {
	return fmt.Sprintf("%s  %s  Author:%s  %s", e.Outcome, e.Key, e.Author, e.Title)
}

// Summary aggregates records by canonical key.
type Summary struct {
	entries map[string]SummaryEntry
}

func NewSummary() *Summary {
	return &Summary{entries: map[string]SummaryEntry{}}
}

// Upsert merges e into the summary. A FAIL is sticky, an existing PASS is
// kept over a later SKIP, anything else is replaced by the newer entry.
func (s *Summary) Upsert(e SummaryEntry) {
	cur, ok := s.entries[e.Key]
	switch {
	case !ok:
	case cur.Outcome == OutcomeFail:
		return
	case cur.Outcome == OutcomePass && e.Outcome == OutcomeSkip:
		return
	}
	s.entries[e.Key] = e
}

// Add upserts every key of the record.
func (s *Summary) Add(r CaseRecord) {
	title := r.Title
	if len(r.CaseIDs) == 0 {
		title = ""
	}
	for _, key := range r.SummaryKeys() {
		s.Upsert(SummaryEntry{Key: key, Outcome: r.Outcome, Author: r.Author, Title: title})
	}
}

func (s *Summary) Get(key string) (SummaryEntry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

func (s *Summary) Len() int { return len(s.entries) }

// Entries returns the entries sorted by key.
func (s *Summary) Entries() []SummaryEntry {
	out := make([]SummaryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Count returns the number of entries with the given outcome.
func (s *Summary) Count(o Outcome) int {
	n := 0
	for _, e := range s.entries {
		if e.Outcome == o {
			n++
		}
	}
	return n
}

// Write prints the summary, one entry per line.
func (s *Summary) Write(w io.Writer) error {
	for _, e := range s.Entries() {
		if _, err := fmt.Fprintln(w, e.String()); err != nil {
			return err
		}
	}
	return nil
}
