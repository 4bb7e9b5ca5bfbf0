package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	logwriter "github.com/sirupsen/logrus/hooks/writer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openshift-qe/qetools/internal/config"
	"github.com/openshift-qe/qetools/pkg/cmd/attr"
	"github.com/openshift-qe/qetools/pkg/cmd/fastfix"
	"github.com/openshift-qe/qetools/pkg/cmd/lint"
	"github.com/openshift-qe/qetools/pkg/cmd/notify"
	"github.com/openshift-qe/qetools/pkg/cmd/results"
	"github.com/openshift-qe/qetools/pkg/cmd/rp"
	"github.com/openshift-qe/qetools/pkg/version"
)

const (
	logFile           = "qetools.log"
	defaultConfigFile = ".qetools.yaml"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "qetools",
	Short: "qetools",
	Long:  `qetools post-processes the JUnit results of OpenShift QE test runs and publishes them to ReportPortal and Slack, and follows the verification of FastFix bugs`,
	// Execute prints the error once.
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error

		// Validate logging level
		loglevel := viper.GetString(config.KeyLogLevel)
		logrusLevel, err := log.ParseLevel(loglevel)
		if err != nil {
			log.Fatal(err)
		}
		log.SetLevel(logrusLevel)

		// Additional log options
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})

		// stdout carries command output, logs go to stderr
		log.SetOutput(os.Stderr)
		fdLog, err := os.OpenFile(logFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			log.Errorf("error opening file %s: %v", logFile, err)
		} else {
			log.AddHook(&logwriter.Hook{
				Writer: fdLog,
				LogLevels: []log.Level{
					log.PanicLevel,
					log.FatalLevel,
					log.ErrorLevel,
					log.WarnLevel,
					log.InfoLevel,
					log.DebugLevel,
				},
			})
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func initBindFlag(flag string) {
	err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag))
	if err != nil {
		log.Warnf("Unable to bind flag %s\n", flag)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/"+defaultConfigFile+" when present)")
	rootCmd.PersistentFlags().String(config.KeyLogLevel, config.DefaultLogLevel, "logging level")
	initBindFlag(config.KeyLogLevel)

	// Link in child commands
	rootCmd.AddCommand(results.NewCmdResult())
	rootCmd.AddCommand(rp.NewCmdRP())
	rootCmd.AddCommand(attr.NewCmdAttr())
	rootCmd.AddCommand(notify.NewCmdNotify())
	rootCmd.AddCommand(lint.NewCmdLint())
	rootCmd.AddCommand(fastfix.NewCmdFastFix())
	rootCmd.AddCommand(version.NewCmdVersion())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	file := cfgFile
	if file == "" {
		if home, err := os.UserHomeDir(); err == nil {
			if _, err := os.Stat(filepath.Join(home, defaultConfigFile)); err == nil {
				file = filepath.Join(home, defaultConfigFile)
			}
		}
	}
	if err := config.Init(viper.GetViper(), file); err != nil {
		log.Fatal(err)
	}
}
