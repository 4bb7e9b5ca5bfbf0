package result

import (
	"fmt"

	"github.com/openshift-qe/qetools/internal/config"
	"github.com/openshift-qe/qetools/pkg/api"
)

type Outcome string

const (
	OutcomePass Outcome = "PASS"
	OutcomeFail Outcome = "FAIL"
	OutcomeSkip Outcome = "SKIP"
)

func outcomeOf(tc *api.TestCase) Outcome {
	switch tc.Status() {
	case api.TestStatusFail:
		return OutcomeFail
	case api.TestStatusSkipped:
		return OutcomeSkip
	}
	return OutcomePass
}

// CaseRecord is the normalized view of one <testcase>.
type CaseRecord struct {
	Name          string
	CaseIDs       []string
	Author        string
	Title         string
	Disambiguator string
	Outcome       Outcome
	Subteam       string
	Case          api.TestCase
}

func newCaseRecord(tc *api.TestCase, subteams config.SubteamSet) CaseRecord {
	title := ParseTitle(tc.Name)
	return CaseRecord{
		Name:          tc.Name,
		CaseIDs:       title.CaseIDs,
		Author:        title.Author,
		Title:         title.Description,
		Disambiguator: title.Disambiguator,
		Outcome:       outcomeOf(tc),
		Subteam:       subteams.Resolve(title.Token),
		Case:          tc.DeepCopy(),
	}
}

// NewCaseRecords normalizes every case of the suite, in document order.
func NewCaseRecords(suite *api.TestSuite, subteams config.SubteamSet) []CaseRecord {
	records := make([]CaseRecord, 0, len(suite.TestCases))
	for i := range suite.TestCases {
		records = append(records, newCaseRecord(&suite.TestCases[i], subteams))
	}
	return records
}

// IngestionNames returns the canonical names the record is reported under:
// one per case ID, or a single No-CASEID name.
func (r CaseRecord) IngestionNames() []string {
	if len(r.CaseIDs) == 0 {
		return []string{fmt.Sprintf("No-CASEID:%s:%s", r.Author, r.Title)}
	}
	names := make([]string, 0, len(r.CaseIDs))
	for _, id := range r.CaseIDs {
		names = append(names, fmt.Sprintf("OCP-%s:%s:%s", id, r.Author, r.Title))
	}
	return names
}

// SummaryKeys returns the keys the record is aggregated under by Summarize.
func (r CaseRecord) SummaryKeys() []string {
	if len(r.CaseIDs) == 0 {
		return []string{fmt.Sprintf("No-CASEID Author:%s %s", r.Author, r.Disambiguator)}
	}
	keys := make([]string, 0, len(r.CaseIDs))
	for _, id := range r.CaseIDs {
		keys = append(keys, "OCP-"+id)
	}
	return keys
}

// Expand returns one clone of the source case per ingestion name. The input
// records are not modified.
func Expand(records []CaseRecord) []api.TestCase {
	out := make([]api.TestCase, 0, len(records))
	for _, r := range records {
		for _, name := range r.IngestionNames() {
			tc := r.Case.DeepCopy()
			tc.Name = name
			out = append(out, tc)
		}
	}
	return out
}
