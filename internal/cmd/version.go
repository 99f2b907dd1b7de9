package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dativo-io/piiscan/internal/classifier"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

type versionInfo struct {
	Version string   `json:"version"`
	Commit  string   `json:"commit"`
	Built   string   `json:"built"`
	Go      string   `json:"go"`
	Types   []string `json:"types"`
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(versionCmd)
}

// resolvedVersion returns Version unless it is "dev" and the build info
// carries a module version (go install ...@v0.3.0).
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

func runVersion(cmd *cobra.Command, _ []string) error {
	_, span := tracer.Start(cmd.Context(), "version")
	defer span.End()

	info := versionInfo{
		Version: resolvedVersion(),
		Commit:  Commit,
		Built:   BuildDate,
		Go:      runtime.Version(),
	}
	for _, t := range classifier.AllTypes {
		info.Types = append(info.Types, string(t))
	}

	w := cmd.OutOrStdout()
	if versionJSON {
		return writeJSON(w, info, true)
	}
	fmt.Fprintf(w, "piiscan %s\n", info.Version)
	fmt.Fprintf(w, "Commit: %s\n", info.Commit)
	fmt.Fprintf(w, "Built:  %s\n", info.Built)
	fmt.Fprintf(w, "Go:     %s\n", info.Go)
	fmt.Fprintf(w, "Types:  %s\n", strings.Join(info.Types, ", "))
	return nil
}
