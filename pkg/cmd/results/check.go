package results

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/openshift-qe/qetools/internal/result"
)

var checkColors = map[result.CheckResultName]*color.Color{
	result.CheckResultNamePass: color.New(color.FgGreen),
	result.CheckResultNameFail: color.New(color.FgRed, color.Bold),
	result.CheckResultNameWarn: color.New(color.FgYellow),
}

func newCmdCheck(opts *resultOptions) *cobra.Command {
	var minPassRatio float64
	cmd := &cobra.Command{
		Use:     "check",
		Short:   "Evaluate the acceptance checks of a test run.",
		Example: "qetools result check --input junit.xml --min-pass-ratio 95",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.input == "" {
				return errors.New("please provide the --input parameter")
			}
			t, err := newTransformer()
			if err != nil {
				return err
			}
			records, err := t.Records(opts.input)
			if err != nil {
				return err
			}
			checks := result.NewCheckSummary(records, minPassRatio)
			checks.Run()
			showChecks(cmd.OutOrStdout(), checks)
			if failed := checks.Failed(); len(failed) > 0 {
				return errors.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&minPassRatio, "min-pass-ratio", result.DefaultMinPassRatio, "Minimum pass percentage of executed cases.")
	return cmd
}

func showChecks(w io.Writer, checks *result.CheckSummary) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetHeader([]string{"ID", "Check", "Result", "Want", "Got", "Message"})
	for _, check := range checks.Checks {
		res := check.Result.String()
		if c, ok := checkColors[check.Result.Name]; ok {
			res = c.Sprint(res)
		}
		table.Append([]string{check.ID, check.Name, res, check.Result.Target, check.Result.Actual, check.Result.Message})
	}
	table.Render()
	fmt.Fprintf(w, "\n%d checks, %d failed\n", len(checks.Checks), len(checks.Failed()))
}
