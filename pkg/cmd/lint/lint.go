package lint

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openshift-qe/qetools/internal/config"
	"github.com/openshift-qe/qetools/internal/naming"
)

type diffOptions struct {
	diffFile string
	rev      string
	dir      string
}

func (o *diffOptions) addFlags(cmd *cobra.Command, defaultRev string) {
	cmd.Flags().StringVar(&o.diffFile, "diff-file", "", "Read the diff from a file, '-' for stdin.")
	cmd.Flags().StringVar(&o.rev, "rev", defaultRev, "Revision passed to git show when no diff file is given.")
	cmd.Flags().StringVar(&o.dir, "repo", ".", "Git repository.")
}

func (o *diffOptions) read(cmd *cobra.Command) (string, error) {
	switch o.diffFile {
	case "":
		return naming.Git{Dir: o.dir}.Show(cmd.Context(), o.rev)
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), errors.Wrap(err, "unable to read stdin")
	}
	data, err := os.ReadFile(o.diffFile)
	if err != nil {
		return "", errors.Wrapf(err, "unable to read %s", o.diffFile)
	}
	return string(data), nil
}

func NewCmdLint() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Check test changes.",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				if err := cmd.Help(); err != nil {
					log.Errorf("error loading help(): %v", err)
				}
			}
		},
	}
	cmd.AddCommand(newCmdNaming())
	cmd.AddCommand(newCmdCaseIDs())
	return cmd
}

func newCmdNaming() *cobra.Command {
	opts := &diffOptions{}
	cmd := &cobra.Command{
		Use:   "naming",
		Short: "Check the sig, subteam and case ID of added g.Describe and g.It titles.",
		RunE: func(cmd *cobra.Command, args []string) error {
			diff, err := opts.read(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			violations, err := naming.NewRules(naming.DefaultSigs, cfg.SubteamSet()).CheckDiff(diff)
			if err != nil {
				return err
			}
			if len(violations) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "the title naming looks good!")
				return nil
			}
			for _, v := range violations {
				fmt.Fprintln(cmd.OutOrStdout(), v.String())
			}
			return errors.Errorf("%d naming violations", len(violations))
		},
	}
	opts.addFlags(cmd, "HEAD")
	return cmd
}

func newCmdCaseIDs() *cobra.Command {
	opts := &diffOptions{}
	cmd := &cobra.Command{
		Use:   "case-ids",
		Short: "Print the case IDs of the first added g.It, '|' separated.",
		RunE: func(cmd *cobra.Command, args []string) error {
			diff, err := opts.read(cmd)
			if err != nil {
				return err
			}
			ids, err := naming.CaseIDsFromDiff(diff)
			if err != nil {
				return err
			}
			if ids == "" {
				log.Info("There is no Test Case found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), ids)
			return nil
		},
	}
	opts.addFlags(cmd, "master..")
	return cmd
}
