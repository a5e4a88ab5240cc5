package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dSync/cmd/demo"
	"github.com/ValentinKolb/dSync/cmd/perf"
	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dsync",
		Short: "real-time collaboration engine",
		Long: fmt.Sprintf(`dSync (v%s)

A coordination-free replication engine for shared documents written in Go.
Text, visual objects and tabular cells converge across concurrently editing
peers through CRDT merge semantics, without consensus or locking.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dSync",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dSync v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(demo.DemoCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("snapshot serializer to use (json, gob, binary)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
