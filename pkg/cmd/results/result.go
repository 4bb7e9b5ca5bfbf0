package results

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openshift-qe/qetools/internal/config"
	"github.com/openshift-qe/qetools/internal/result"
)

const (
	ActionGet      = "get"
	ActionReplace  = "replace"
	ActionGenerate = "generate"
	ActionSplit    = "split"
)

type resultOptions struct {
	action   string
	input    string
	output   string
	scenario string
	table    bool
}

func NewCmdResult() *cobra.Command {
	opts := &resultOptions{}
	cmd := &cobra.Command{
		Use:   "result",
		Short: "Transform and summarize JUnit results of a test run.",
		Example: `  qetools result --action get --input junit.xml
  qetools result --action replace --input junit.xml --output junit.xml
  qetools result generate --input junit.xml --output import.xml --scenario "OLM|SDN"
  qetools result split --input junit.xml --output ./import
  qetools result check --input junit.xml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.action == "" {
				return cmd.Help()
			}
			return runAction(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.action, "action", "a", "", "Operation: get, replace, generate or split.")
	cmd.PersistentFlags().StringVarP(&opts.input, "input", "i", "", "JUnit XML report to read.")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "", "File to write, or directory for split.")
	cmd.PersistentFlags().StringVarP(&opts.scenario, "scenario", "s", "", "Suite name of the generated report.")
	cmd.PersistentFlags().BoolVar(&opts.table, "table", false, "Print the summary as a table.")

	for _, action := range []struct{ name, short string }{
		{ActionGet, "Print the case execution summary."},
		{ActionReplace, "Remove the monitor case from the report."},
		{ActionGenerate, "Rename and expand cases for ingestion."},
		{ActionSplit, "Write one ingestion report per subteam."},
	} {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				opts.action = action.name
				return runAction(cmd.OutOrStdout(), opts)
			},
		})
	}
	cmd.AddCommand(newCmdParse())
	cmd.AddCommand(newCmdCheck(opts))
	return cmd
}

func newTransformer() (*result.Transformer, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return result.NewTransformer(cfg.SubteamSet(), nil), nil
}

func runAction(w io.Writer, opts *resultOptions) error {
	if opts.input == "" {
		return errors.New("please provide the --input parameter")
	}
	t, err := newTransformer()
	if err != nil {
		return err
	}

	switch opts.action {
	case ActionGet:
		s, err := t.Summarize(opts.input)
		if err != nil {
			return err
		}
		if opts.table {
			renderSummaryTable(w, s)
			return nil
		}
		fmt.Fprintln(w, "The Case Execution Summary:")
		return s.Write(w)
	case ActionReplace:
		if opts.output == "" {
			return errors.New("please provide the --output parameter")
		}
		removed, err := t.RemoveMonitorCase(opts.input, opts.output)
		if err != nil {
			return err
		}
		log.Infof("Monitor case removed: %v", removed)
		return nil
	case ActionGenerate:
		if opts.output == "" {
			return errors.New("please provide the --output parameter")
		}
		return t.ExpandForIngestion(opts.input, opts.output, opts.scenario)
	case ActionSplit:
		dir := opts.output
		if dir == "" {
			dir = "."
		}
		paths, err := t.SplitBySubteam(opts.input, dir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(w, p)
		}
		return nil
	}
	return errors.Errorf("unknown action %q, want one of get, replace, generate, split", opts.action)
}

var outcomeColors = map[result.Outcome]*color.Color{
	result.OutcomePass: color.New(color.FgGreen),
	result.OutcomeFail: color.New(color.FgRed, color.Bold),
	result.OutcomeSkip: color.New(color.FgYellow),
}

func colorOutcome(o result.Outcome) string {
	if c, ok := outcomeColors[o]; ok {
		return c.Sprint(string(o))
	}
	return string(o)
}

// renderSummaryTable displays the summary as a table.
func renderSummaryTable(w io.Writer, s *result.Summary) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	var data [][]string
	for _, e := range s.Entries() {
		data = append(data, []string{colorOutcome(e.Outcome), e.Key, e.Author, e.Title})
	}
	table.AppendBulk(data)
	table.SetHeader([]string{"Result", "Case", "Author", "Title"})
	table.SetFooter([]string{"", "", "",
		fmt.Sprintf("pass %d, fail %d, skip %d", s.Count(result.OutcomePass), s.Count(result.OutcomeFail), s.Count(result.OutcomeSkip))})
	table.Render()
}
