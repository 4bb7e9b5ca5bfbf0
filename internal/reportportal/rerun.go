package reportportal

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/openshift-qe/qetools/internal/config"
)

// Outcomes of RerunFilter that carry no filter. The values are the markers
// the CI job greps for.
const (
	RerunNewLaunch      = "NOFOUND-NEWLAUNCH-NOREPLACE"
	RerunNoSubteam      = "NOFOUND-NOSUBTEAMINSCENARIO-NOREPLACE"
	RerunNothingToRerun = "NOFAILEDCASEFOUNDNONEWCASE-NORERUN"
)

// RerunPlan is the scenario filter for rerunning a launch.
type RerunPlan struct {
	// Status is one of the Rerun* markers when there is no filter.
	Status string
	Filter string
	// Warnings lists launches whose failed items could not be read.
	Warnings []string
}

func (p *RerunPlan) String() string {
	if p.Status != "" {
		return p.Status
	}
	return p.Filter
}

func splitScenarios(scenarios string) []string {
	out := []string{}
	for _, s := range strings.Split(scenarios, "|") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RerunFilter computes the scenario filter for rerunning launchName. The
// scenarios of the previous run are '|' separated; subteam scenarios are
// narrowed to the failed case IDs of their launch, a subteam without a
// launch is rerun whole, and other scenarios are kept as they are.
func (c *Client) RerunFilter(ctx context.Context, launchName, scenarios string, subteams config.SubteamSet) (*RerunPlan, error) {
	launches, err := c.FindLaunches(ctx, launchName, nil)
	if err != nil {
		return nil, err
	}
	if len(launches) == 0 {
		return &RerunPlan{Status: RerunNewLaunch}, nil
	}

	wanted, others := []string{}, []string{}
	for _, s := range splitScenarios(scenarios) {
		switch {
		case s == config.ISVOperatorsScenario:
			wanted = append(wanted, config.ISVOperatorsSubteamID)
		case subteams.Has(s):
			wanted = append(wanted, s)
		default:
			others = append(others, s)
		}
	}
	if len(wanted) == 0 {
		return &RerunPlan{Status: RerunNoSubteam}, nil
	}

	ids, unmatched := []int64{}, []string{}
	for _, st := range wanted {
		matched := false
		for i := range launches {
			if launches[i].HasAttribute(Attribute{Key: "team", Value: st}) {
				ids = append(ids, launches[i].ID)
				matched = true
			}
		}
		if !matched {
			unmatched = append(unmatched, st)
		}
	}

	plan := &RerunPlan{}
	failed := []string{}
	for _, id := range ids {
		items, err := c.FailedItems(ctx, id)
		if err != nil {
			log.WithError(err).Warnf("skipping launch %d", id)
			plan.Warnings = append(plan.Warnings, err.Error())
			continue
		}
		failed = append(failed, CaseIDsOfItems(items)...)
	}

	parts := append(append(failed, unmatched...), others...)
	if len(parts) == 0 {
		plan.Status = RerunNothingToRerun
		return plan, nil
	}
	plan.Filter = strings.ReplaceAll(strings.Join(parts, "|"), config.ISVOperatorsSubteamID, config.ISVOperatorsScenario)
	return plan, nil
}
