package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cfgprep/internal/version"
)

// versionPayload is the JSON form of `cfgprep version`.
type versionPayload struct {
	Tool string `json:"tool"`
	version.Info
}

var versionOpts struct {
	format string
	full   bool
}

func init() {
	versionCmd.Flags().StringVar(&versionOpts.format, "format", "pretty", "output format (pretty|json)")
	versionCmd.Flags().BoolVar(&versionOpts.full, "full", false, "include commit, build date and Go version")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show cfgprep build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := version.Current()
		if !versionOpts.full {
			info = version.Info{Version: info.Version}
		}
		switch versionOpts.format {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(versionPayload{Tool: appName, Info: info})
		case "pretty":
			printVersion(cmd.OutOrStdout(), info)
			return nil
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", versionOpts.format)
		}
	},
}

func printVersion(out io.Writer, info version.Info) {
	fmt.Fprintf(out, "%s %s\n", appName, version.Colored(info.Version))
	for _, row := range [][2]string{
		{"commit", info.GitCommit},
		{"built", info.BuildDate},
		{"go", info.GoVersion},
	} {
		if row[1] != "" {
			fmt.Fprintf(out, "  %-7s%s\n", row[0]+":", row[1])
		}
	}
}
