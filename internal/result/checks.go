package result

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/openshift-qe/qetools/internal/config"
)

// Checks evaluate the acceptance criteria of a test run from its case
// records, before the run is published.

const (
	CheckResultNamePass CheckResultName = "pass"
	CheckResultNameFail CheckResultName = "fail"
	CheckResultNameWarn CheckResultName = "warn"

	CheckIDMonitor       string = "QE-001"
	CheckIDPassRatio     string = "QE-002"
	CheckIDCaseID        string = "QE-003"
	CheckIDAuthor        string = "QE-004"
	CheckIDSubteam       string = "QE-005"
	CheckIDRuntimeFailed string = "QE-006"

	DefaultMinPassRatio = 90.0
)

type CheckResultName string

type CheckResult struct {
	Name    CheckResultName `json:"result"`
	Message string          `json:"message"`
	Target  string          `json:"want"`
	Actual  string          `json:"got"`
}

func (cr *CheckResult) String() string {
	return string(cr.Name)
}

type Check struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Result CheckResult `json:"result"`

	Test func() CheckResult `json:"-"`
}

// CheckSummary aggregates the checks of one run.
type CheckSummary struct {
	Checks []*Check `json:"checks"`
}

// NewCheckSummary builds the run checks. minPassRatio is the pass
// percentage, over executed cases, below which the run fails.
func NewCheckSummary(records []CaseRecord, minPassRatio float64) *CheckSummary {
	var executed, passed, failed int
	var monitor *CaseRecord
	var noID, noAuthor, unknownSubteam []string
	for i := range records {
		r := records[i]
		if IsMonitorCase(r.Name) {
			monitor = &records[i]
			continue
		}
		switch r.Outcome {
		case OutcomePass:
			executed++
			passed++
		case OutcomeFail:
			executed++
			failed++
		}
		if len(r.CaseIDs) == 0 {
			noID = append(noID, r.Name)
		}
		if r.Author == UnknownAuthor {
			noAuthor = append(noAuthor, r.Name)
		}
		if r.Subteam == config.UnknownSubteam {
			unknownSubteam = append(unknownSubteam, r.Name)
		}
	}

	cs := &CheckSummary{Checks: []*Check{}}
	cs.Checks = append(cs.Checks, &Check{
		ID:   CheckIDMonitor,
		Name: "Cluster monitor must pass while tests execute",
		Test: func() CheckResult {
			res := CheckResult{Name: CheckResultNameWarn, Target: string(OutcomePass)}
			if monitor == nil {
				res.Actual = "--"
				res.Message = "monitor case not found"
				return res
			}
			res.Actual = string(monitor.Outcome)
			if monitor.Outcome == OutcomeFail {
				log.Debugf("Check Failed: %s: monitor case reported failure", CheckIDMonitor)
				res.Name = CheckResultNameFail
				return res
			}
			res.Name = CheckResultNamePass
			return res
		},
	})
	cs.Checks = append(cs.Checks, &Check{
		ID:   CheckIDRuntimeFailed,
		Name: "Run must execute at least one case without failing all of them",
		Test: func() CheckResult {
			res := CheckResult{Name: CheckResultNameFail, Target: "Executed>0|Executed!=Failed"}
			res.Actual = fmt.Sprintf("Executed==%d,Failed==%d", executed, failed)
			if executed == 0 || executed == failed {
				res.Message = "Potential runtime failure. Check the job logs."
				log.Debugf("Check Failed: %s: executed[%d] failed[%d]", CheckIDRuntimeFailed, executed, failed)
				return res
			}
			res.Name = CheckResultNamePass
			return res
		},
	})
	cs.Checks = append(cs.Checks, &Check{
		ID:   CheckIDPassRatio,
		Name: fmt.Sprintf("Pass ratio of executed cases must be >=%.1f%%", minPassRatio),
		Test: func() CheckResult {
			res := CheckResult{Name: CheckResultNameFail, Target: fmt.Sprintf(">=%.1f%%", minPassRatio)}
			if executed == 0 {
				res.Actual = "--"
				return res
			}
			ratio := float64(passed) / float64(executed) * 100
			res.Actual = fmt.Sprintf("%.3f%%", ratio)
			if ratio < minPassRatio {
				log.Debugf("Check Failed: %s: want[>=%.1f] got[%.3f]", CheckIDPassRatio, minPassRatio, ratio)
				return res
			}
			res.Name = CheckResultNamePass
			return res
		},
	})
	cs.Checks = append(cs.Checks, countCheck(CheckIDCaseID, "Cases must carry a case ID", noID))
	cs.Checks = append(cs.Checks, countCheck(CheckIDAuthor, "Cases must carry an author", noAuthor))
	cs.Checks = append(cs.Checks, countCheck(CheckIDSubteam, "Cases must belong to a known subteam", unknownSubteam))
	return cs
}

// countCheck warns when offenders is not empty. The first offender is
// reported in the message.
func countCheck(id, name string, offenders []string) *Check {
	return &Check{
		ID:   id,
		Name: name,
		Test: func() CheckResult {
			res := CheckResult{Name: CheckResultNamePass, Target: "0", Actual: fmt.Sprintf("%d", len(offenders))}
			if len(offenders) > 0 {
				res.Name = CheckResultNameWarn
				res.Message = fmt.Sprintf("e.g. %q", offenders[0])
			}
			return res
		},
	}
}

func (csum *CheckSummary) Run() {
	for _, check := range csum.Checks {
		check.Result = check.Test()
	}
}

// Failed returns the checks with a fail result. Run must be called first.
func (csum *CheckSummary) Failed() []*Check {
	failures := []*Check{}
	for _, check := range csum.Checks {
		if check.Result.Name == CheckResultNameFail {
			failures = append(failures, check)
		}
	}
	return failures
}
