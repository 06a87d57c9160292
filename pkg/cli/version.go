package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/getpactd/pactd/pkg/verifier"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pactd version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pactd %s (%s/%s)\n", verifier.Version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
