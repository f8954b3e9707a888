package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// buildInfo describes the running binary. The CLI sends Agent as its
// User-Agent to the gateway.
type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Built     string `json:"built"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Agent     string `json:"user_agent"`
}

func currentBuild(commit, date string) buildInfo {
	return buildInfo{
		Version:   versionString(),
		Commit:    commit,
		Built:     date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Agent:     userAgent(),
	}
}

func newVersionCmd(commit, date string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the glow build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentBuild(commit, date)
			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, info)
			}
			fmt.Fprintf(w, "glow %s (%s, built %s)\n", info.Version, info.Commit, info.Built)
			fmt.Fprintf(w, "%s on %s\n", info.GoVersion, info.Platform)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
