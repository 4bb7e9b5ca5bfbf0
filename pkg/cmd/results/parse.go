package results

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openshift-qe/qetools/internal/result"
	"github.com/openshift-qe/qetools/pkg/api"
)

type parseJUnitInput struct {
	skipFailed  bool
	skipPassed  bool
	skipSkipped bool
}

func newCmdParse() *cobra.Command {
	in := &parseJUnitInput{}
	cmd := &cobra.Command{
		Use:     "parse <junit.xml>",
		Example: "qetools result parse junit.xml --skip-passed",
		Short:   "Parse a JUnit file and print its counters and cases.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("please provide the path to the JUnit file")
			}
			return parseJUnitRun(cmd.OutOrStdout(), args[0], in)
		},
	}
	cmd.Flags().BoolVar(&in.skipFailed, "skip-failed", false, "Skip printing the failed test names.")
	cmd.Flags().BoolVar(&in.skipPassed, "skip-passed", false, "Skip printing the passed test names.")
	cmd.Flags().BoolVar(&in.skipSkipped, "skip-skipped", false, "Skip printing the skipped test names.")
	return cmd
}

func parseJUnitRun(w io.Writer, junitFile string, in *parseJUnitInput) error {
	parser, err := api.NewJUnitXMLParser(junitFile)
	if err != nil {
		return fmt.Errorf("error parsing JUnit file: %v", err)
	}
	t, err := newTransformer()
	if err != nil {
		return err
	}
	records, err := t.Records(junitFile)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "- File: %s\n", parser.XMLFile)
	fmt.Fprintf(w, "- Total: %d\n", parser.Counters.Total)
	fmt.Fprintf(w, "- Pass: %d\n", parser.Counters.Pass)
	fmt.Fprintf(w, "- Skipped: %d\n", parser.Counters.Skipped)
	fmt.Fprintf(w, "- Failures: %d\n", parser.Counters.Failures)
	fmt.Fprintf(w, "- Subteams: %s\n", result.NewSubteamTally(records).ShowSorted())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "JUnit Attributes:")
	fmt.Fprintf(w, "- Name: %s\n", parser.Parsed.Name)
	fmt.Fprintf(w, "- Tests: %d\n", parser.Parsed.Tests)
	fmt.Fprintf(w, "- Skipped: %d\n", parser.Parsed.SkippedCount())
	fmt.Fprintf(w, "- Failures: %d\n", parser.Parsed.Failures)
	fmt.Fprintf(w, "- Time: %s\n", parser.Parsed.Time)

	passed := []string{}
	skipped := []string{}
	for _, tc := range parser.Cases {
		switch tc.Status() {
		case api.TestStatusPass:
			passed = append(passed, tc.Name)
		case api.TestStatusSkipped:
			skipped = append(skipped, tc.Name)
		}
	}

	if !in.skipPassed {
		fmt.Fprintf(w, "\n#> Passed tests (%d): \n%s\n", len(passed), strings.Join(passed, "\n"))
	}
	if !in.skipFailed {
		fmt.Fprintf(w, "\n#> Failed tests (%d): \n%s\n", len(parser.Failures), strings.Join(parser.Failures, "\n"))
	}
	if !in.skipSkipped {
		fmt.Fprintf(w, "\n#> Skipped tests (%d): \n%s\n", len(skipped), strings.Join(skipped, "\n"))
	}
	if top := result.RecordSignals(records).Top(5); len(top) > 0 {
		fmt.Fprintln(w, "\n#> Failure signals:")
		for _, d := range top {
			fmt.Fprintf(w, "- %s: %d\n", d.Key, d.Value)
		}
	}
	return nil
}
