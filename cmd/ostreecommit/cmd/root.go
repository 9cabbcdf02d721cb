// Package cmd implements the ostreecommit CLI, exercising the engine
// end to end the way datamon/cmd/datamon/cmd exercises pkg/cafs and
// pkg/core: init a repository, commit a directory, inspect an object,
// list refs.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/oneconcern/ostree-go/internal/dlog"
)

var params struct {
	repoPath string
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:   "ostreecommit",
	Short: "Commit directory trees into a content-addressed object store",
	Long: `ostreecommit drives the commit engine directly: it lays out a
repository, ingests a directory into content-addressed objects, and
records the result as a commit under a named ref.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&params.repoPath, "repo", ".ostree", "path to the repository")
	rootCmd.PersistentFlags().StringVar(&params.logLevel, "log-level", dlog.LevelInfo, "log level: debug, info, none")
	_ = viper.BindPFlag("repo", rootCmd.PersistentFlags().Lookup("repo"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	viper.SetEnvPrefix("OSTREECOMMIT")
	viper.AutomaticEnv()
}

// Execute runs the root command, exiting the process with a non-zero
// status on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failure(err.Error()))
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	return dlog.MustGetLogger(params.logLevel)
}
