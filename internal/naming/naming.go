// Package naming checks the test naming convention on the lines a change
// adds, and extracts the case IDs those lines introduce.
package naming

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/openshift-qe/qetools/internal/config"
)

// DefaultSigs are the sig tags accepted in g.Describe titles.
var DefaultSigs = []string{
	"sig-arch", "sig-isc", "sig-api-machinery", "sig-auth", "sig-apps", "sig-cli", "sig-scheduling",
	"sig-etcd", "sig-network", "sig-network-edge", "sig-storage", "sig-openshift-logging", "sig-devex",
	"sig-builds", "sig-ui", "sig-instrumentation", "sig-service-catalog", "sig-operators",
	"sig-imageregistry", "sig-hive", "sig-windows", "sig-testing", "sig-scalability", "sig-node",
	"sig-cluster-lifecycle", "sig-networking", "sig-mco", "sig-hypershift", "sig-kata", "sig-perfscale",
	"sig-disasterrecovery", "sig-tuning-node", "sig-updates", "sig-baremetal", "sig-oc",
	"sig-netobserv", "sig-monitoring", "sig-cco", "sig-installer", "sig-workloads",
}

var (
	describeRegex = regexp.MustCompile(`^\+.*g\.Describe\("(\[(.*)\]\s(.*))"`)
	itRegex       = regexp.MustCompile(`^\+\s+g\.It\("(.*?)"`)
	itTitleRegex  = regexp.MustCompile(`^(.*)-(\d+)-(.*)$`)
	itIDsRegex    = regexp.MustCompile(`^\+\s+g\.It\(".*?((?:[A-Za-z]+-\d+-)+)`)
	digitsRegex   = regexp.MustCompile(`\d+`)
)

// Violation is a naming rule broken by an added line.
type Violation struct {
	Line   int
	Text   string
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("line %d: %s: %s", v.Line, v.Reason, strings.TrimSpace(v.Text))
}

// Rules holds the accepted sig tags and subteams.
type Rules struct {
	sigs     []string
	subteams config.SubteamSet
}

func NewRules(sigs []string, subteams config.SubteamSet) *Rules {
	return &Rules{sigs: sigs, subteams: subteams}
}

func (r *Rules) knownSig(tag string) bool {
	for _, s := range r.sigs {
		if strings.Contains(tag, s) {
			return true
		}
	}
	return false
}

// CheckDiff validates every g.Describe and g.It the diff adds. A Describe
// title must start with a known [sig] tag followed by a known subteam; an
// It title must carry a -<digits>- case ID.
func (r *Rules) CheckDiff(diff string) ([]Violation, error) {
	violations := []Violation{}
	scanner := bufio.NewScanner(strings.NewReader(diff))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if strings.HasPrefix(line, "+++") {
			continue
		}
		if m := describeRegex.FindStringSubmatch(line); m != nil {
			if !r.knownSig(m[2]) {
				violations = append(violations, Violation{Line: n, Text: line, Reason: fmt.Sprintf("unknown sig %q", m[2])})
			}
			team := ""
			if fields := strings.Fields(m[3]); len(fields) > 0 {
				team = fields[0]
			}
			if !r.subteams.Has(team) {
				violations = append(violations, Violation{Line: n, Text: line, Reason: fmt.Sprintf("unknown subteam %q", team)})
			}
			continue
		}
		if m := itRegex.FindStringSubmatch(line); m != nil {
			if !itTitleRegex.MatchString(m[1]) {
				violations = append(violations, Violation{Line: n, Text: line, Reason: "title has no -<caseid>- part"})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return violations, errors.Wrap(err, "unable to read diff")
	}
	return violations, nil
}

// CaseIDsFromDiff returns the case IDs of the first g.It the diff adds,
// joined with '|' so the result can be used as a test filter. It returns ""
// when no added g.It carries case IDs.
func CaseIDsFromDiff(diff string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(diff))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if m := itIDsRegex.FindStringSubmatch(scanner.Text()); m != nil {
			return strings.Join(digitsRegex.FindAllString(m[1], -1), "|"), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(err, "unable to read diff")
	}
	return "", nil
}
