// Package cli implements the pactd command line interface.
package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getpactd/pactd/pkg/logging"
	"github.com/getpactd/pactd/pkg/verifier"
)

// NewRootCmd builds the pactd root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pactd",
		Short: "Consumer-driven contract testing toolkit",
		Long: `pactd records consumer expectations as pact files, serves them from a
mock provider during consumer tests, and replays them against the real
provider to verify compatibility.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")

	root.AddCommand(newVerifyCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the CLI and returns the process exit code. Exit code 2
// is reserved for "no pacts found".
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		if err == verifier.ErrNoPacts {
			printError(root.ErrOrStderr(), err.Error())
			return 2
		}
		printError(root.ErrOrStderr(), err.Error())
		return 1
	}
	return 0
}

func loggerFromFlags(cmd *cobra.Command) *loggingConfig {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	return &loggingConfig{
		level:  logging.ParseLevel(level),
		format: logging.ParseFormat(format),
	}
}

type loggingConfig struct {
	level  logging.Level
	format logging.Format
}

// envName maps a flag name to its environment variable alias:
// --broker-url becomes PACTD_BROKER_URL.
func envName(flag string) string {
	return "PACTD_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// stringFlagOrEnv reads a flag, falling back to its environment alias
// when the flag was not set on the command line.
func stringFlagOrEnv(cmd *cobra.Command, name string) string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	if env, ok := os.LookupEnv(envName(name)); ok {
		return env
	}
	v, _ := cmd.Flags().GetString(name)
	return v
}

func boolFlagOrEnv(cmd *cobra.Command, name string) bool {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetBool(name)
		return v
	}
	if env, ok := os.LookupEnv(envName(name)); ok {
		return env == "true" || env == "1" || env == "yes"
	}
	v, _ := cmd.Flags().GetBool(name)
	return v
}
