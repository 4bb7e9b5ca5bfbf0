package attr

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openshift-qe/qetools/internal/attribution"
)

type getOptions struct {
	yaml     string
	yamlFile string
	para     string
}

func NewCmdAttr() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attr",
		Short: "Read launch attributes from YAML documents.",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				if err := cmd.Help(); err != nil {
					log.Errorf("error loading help(): %v", err)
				}
			}
		},
	}
	cmd.AddCommand(newCmdGet())
	return cmd
}

func newCmdGet() *cobra.Command {
	opts := &getOptions{}
	cmd := &cobra.Command{
		Use:     "get",
		Short:   "Print the value at a colon separated path, or failtogetvalue.",
		Example: `  qetools attr get --yaml "$ATTRIBUTE_OPTION" --para build_version`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.para == "" {
				return errors.New("please provide the --para parameter")
			}
			doc := []byte(opts.yaml)
			if opts.yamlFile != "" {
				var err error
				if doc, err = os.ReadFile(opts.yamlFile); err != nil {
					return errors.Wrapf(err, "unable to read %s", opts.yamlFile)
				}
			}
			parsed, err := attribution.Parse(doc)
			if err != nil {
				return err
			}
			value, err := parsed.GetString(opts.para)
			if err != nil {
				log.Debug(err)
				value = attribution.NotFoundValue
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.yaml, "yaml", "", "YAML document.")
	cmd.Flags().StringVar(&opts.yamlFile, "yaml-file", "", "File holding the YAML document, instead of --yaml.")
	cmd.Flags().StringVar(&opts.para, "para", "", "Path of the value, e.g. cluster:profile.")
	return cmd
}
