// Package result rewrites the JUnit reports produced by the extended
// OpenShift test suites before they are pushed to ReportPortal.
package result

import (
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/openshift-qe/qetools/internal/config"
	"github.com/openshift-qe/qetools/pkg/api"
)

// MonitorCaseMarker identifies the housekeeping case the test harness adds
// to watch the cluster during the run.
const MonitorCaseMarker = "Monitor cluster while tests execute"

// Transformer reads one JUnit report and derives the artifacts used by the
// pipeline.
type Transformer struct {
	subteams config.SubteamSet
	fs       afero.Fs
}

func NewTransformer(subteams config.SubteamSet, fs afero.Fs) *Transformer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Transformer{subteams: subteams, fs: fs}
}

func (t *Transformer) readSuite(path string) (*api.TestSuite, error) {
	fd, err := t.fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	defer fd.Close()

	suite, err := api.ParseJUnit(fd)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", path)
	}
	return suite, nil
}

func (t *Transformer) writeSuite(path string, suite *api.TestSuite) error {
	fd, err := t.fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	if err := api.WriteJUnit(fd, suite); err != nil {
		fd.Close()
		return errors.Wrapf(err, "unable to write %s", path)
	}
	return fd.Close()
}

// Records returns the normalized records of the report at input.
func (t *Transformer) Records(input string) ([]CaseRecord, error) {
	suite, err := t.readSuite(input)
	if err != nil {
		return nil, err
	}
	return NewCaseRecords(suite, t.subteams), nil
}

func IsMonitorCase(name string) bool {
	return strings.Contains(name, MonitorCaseMarker)
}

// RemoveMonitorCase drops the monitor case from the report and decrements the
// suite tests and failures counters. The output is written even when the
// report has no monitor case; the returned bool tells whether one was removed.
func (t *Transformer) RemoveMonitorCase(input, output string) (bool, error) {
	suite, err := t.readSuite(input)
	if err != nil {
		return false, err
	}

	removed := false
	cases := make([]api.TestCase, 0, len(suite.TestCases))
	for _, tc := range suite.TestCases {
		if !removed && IsMonitorCase(tc.Name) {
			removed = true
			continue
		}
		cases = append(cases, tc)
	}
	if removed {
		suite.TestCases = cases
		suite.Tests -= 1
		suite.Failures -= 1
		log.Debugf("Removed monitor case from %s", input)
	} else {
		log.Debugf("No monitor case found in %s", input)
	}

	return removed, t.writeSuite(output, suite)
}

// Summarize aggregates the report by case ID, ignoring the monitor case.
func (t *Transformer) Summarize(input string) (*Summary, error) {
	records, err := t.Records(input)
	if err != nil {
		return nil, err
	}
	s := NewSummary()
	for _, r := range records {
		if IsMonitorCase(r.Name) {
			continue
		}
		s.Add(r)
	}
	return s, nil
}

// PrintSummary writes the case execution summary of input to w.
func (t *Transformer) PrintSummary(input string, w io.Writer) error {
	s, err := t.Summarize(input)
	if err != nil {
		return err
	}
	return s.Write(w)
}

// ExpandForIngestion renames every case to its canonical name, cloning cases
// that carry more than one case ID, and labels the suite with scenario. Suite
// counters are kept as they are.
func (t *Transformer) ExpandForIngestion(input, output, scenario string) error {
	suite, err := t.readSuite(input)
	if err != nil {
		return err
	}
	records := NewCaseRecords(suite, t.subteams)
	suite.Name = scenario
	suite.TestCases = Expand(records)

	log.WithField("scenario", scenario).Debugf("Expanded %d cases into %d", len(records), len(suite.TestCases))
	return t.writeSuite(output, suite)
}

type suiteCounters struct {
	tests    int
	failures int
	skipped  int
}

func (c *suiteCounters) count(o Outcome) {
	switch o {
	case OutcomePass:
		c.tests++
	case OutcomeFail:
		c.tests++
		c.failures++
	case OutcomeSkip:
		c.failures++
		c.skipped++
	}
}

// foldGroup counts the expanded cases of a subteam. Every case enters with a
// baseline of one unit per counter, which is taken back after its clones are
// counted.
func foldGroup(records []CaseRecord) suiteCounters {
	total := suiteCounters{}
	for _, r := range records {
		c := suiteCounters{tests: 1, failures: 1, skipped: 1}
		for range r.IngestionNames() {
			c.count(r.Outcome)
		}
		c.tests--
		c.failures--
		c.skipped--

		total.tests += c.tests
		total.failures += c.failures
		total.skipped += c.skipped
	}
	return total
}

// SplitFileName returns the file name used for a subteam report.
func SplitFileName(subteam string) string {
	return "import-" + strings.ReplaceAll(subteam, "/", "_") + ".xml"
}

// SplitBySubteam writes one import-<subteam>.xml report per subteam found in
// input into outDir and returns the written paths, sorted by subteam.
func (t *Transformer) SplitBySubteam(input, outDir string) ([]string, error) {
	suite, err := t.readSuite(input)
	if err != nil {
		return nil, err
	}
	records := NewCaseRecords(suite, t.subteams)

	groups := map[string][]CaseRecord{}
	for _, r := range records {
		groups[r.Subteam] = append(groups[r.Subteam], r)
	}
	subteams := make([]string, 0, len(groups))
	for st := range groups {
		subteams = append(subteams, st)
	}
	sort.Strings(subteams)

	if outDir == "" {
		outDir = "."
	}
	if err := t.fs.MkdirAll(outDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", outDir)
	}

	log.Infof("Subteams in %s: %s", input, NewSubteamTally(records).ShowSorted())

	paths := make([]string, 0, len(subteams))
	for _, st := range subteams {
		group := groups[st]
		counters := foldGroup(group)
		out := &api.TestSuite{
			Name:      st,
			Tests:     counters.tests,
			Failures:  counters.failures,
			TestCases: Expand(group),
		}
		out.SetSkipped(counters.skipped)
		path := filepath.Join(outDir, SplitFileName(st))
		if err := t.writeSuite(path, out); err != nil {
			return nil, err
		}
		log.WithField("subteam", st).Debugf("Wrote %d cases to %s", len(out.TestCases), path)
		paths = append(paths, path)
	}
	return paths, nil
}
