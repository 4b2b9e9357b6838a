package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	applog "github.com/bascanada/logmerge/pkg/log"
)

// Exit codes per the CLI's external contract.
const (
	ExitSuccess       = 0
	ExitInvalidConfig = 2
	ExitIOFailure     = 3
	ExitCanceled      = 4
)

var (
	sessionConfigPath string
	logOpts           applog.Options
	appLogger         *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "logmerge",
	Short: "Merge rotated log files into a time-ordered, paginated stream",
	Long: `logmerge reconstructs a single time-ordered stream out of rotated,
per-producer plain-text log files, persists it as content-addressable
NDJSON chunks with a manifest, and serves paginated, filtered, and
searchable reads to a viewer.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		appLogger = applog.Configure(&logOpts)
	},
}

// Execute runs the root command. Subcommands exit with their own codes; an
// error returned to Execute (such as a flag parse failure) exits with
// ExitInvalidConfig.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitInvalidConfig)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&sessionConfigPath, "config", "c", "", "session config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logOpts.Path, "logging-path", "", "file to write application logs to")
	rootCmd.PersistentFlags().StringVar(&logOpts.Level, "logging-level", "", "logging level: TRACE, DEBUG, INFO, WARN, ERROR")
	rootCmd.PersistentFlags().BoolVar(&logOpts.Stdout, "logging-stdout", false, "also write application logs to stdout")

	_ = rootCmd.RegisterFlagCompletionFunc("logging-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pageCmd)
	rootCmd.AddCommand(searchCmd)
}
