package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			if short {
				_, _ = fmt.Fprintln(out, version)
				return
			}
			rev, built := commit, date
			// go install builds carry VCS stamps instead of ldflags.
			if info, ok := debug.ReadBuildInfo(); ok && rev == "unknown" {
				for _, s := range info.Settings {
					switch s.Key {
					case "vcs.revision":
						rev = s.Value
					case "vcs.time":
						built = s.Value
					}
				}
			}
			_, _ = fmt.Fprintf(out, "filegraph %s\n  commit: %s\n  built:  %s\n  go:     %s\n", version, rev, built, runtime.Version())
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version")
	return cmd
}
