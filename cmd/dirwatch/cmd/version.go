package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/dirwatch/pkg/version"
)

// newVersionCmd reports the build of the running binary. Values not set
// at link time fall back to the module build info.
func newVersionCmd() *cobra.Command {
	var asJSON, short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the dirwatch build",
		Example: `  dirwatch version
  dirwatch version --short   # e.g. for scripts comparing releases`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			switch {
			case short:
				_, err := fmt.Fprintln(w, version.Short())
				return err
			case asJSON:
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(version.GetInfo())
			default:
				_, err := fmt.Fprintln(w, version.String())
				return err
			}
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print the release only (wins over --json)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print release, commit, build date and platform as JSON")

	return cmd
}
