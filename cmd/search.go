package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/bascanada/logmerge/internal/engine/pagination"
)

var (
	searchManifestDir string
	searchQuery       string
	searchTop         int
	searchRegex       bool
	searchCaseSens    bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search a merged manifest for a substring or regular expression",
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchManifestDir, "manifest-dir", "", "directory containing manifest.json and its chunks")
	searchCmd.Flags().StringVar(&searchQuery, "q", "", "query text or regular expression")
	searchCmd.Flags().IntVar(&searchTop, "top", 0, "stop after this many hits (0 = unbounded)")
	searchCmd.Flags().BoolVar(&searchRegex, "regex", false, "treat q as a regular expression")
	searchCmd.Flags().BoolVar(&searchCaseSens, "case-sensitive", false, "match case-sensitively")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchManifestDir == "" || searchQuery == "" {
		appLogger.Error("--manifest-dir and --q are required")
		os.Exit(ExitInvalidConfig)
		return nil
	}

	svc := pagination.New()
	if err := svc.SetManifestDir(searchManifestDir); err != nil {
		appLogger.Error("failed to open manifest", "err", err)
		os.Exit(ExitIOFailure)
		return nil
	}

	hits, version, err := svc.SearchAll(context.Background(), searchQuery, pagination.SearchOptions{
		Regex:         searchRegex,
		CaseSensitive: searchCaseSens,
		Top:           searchTop,
	})
	if err != nil {
		appLogger.Error("searchAll failed", "err", err)
		os.Exit(ExitIOFailure)
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	for _, h := range hits {
		if err := enc.Encode(h); err != nil {
			appLogger.Error("failed to encode hit", "err", err)
			os.Exit(ExitIOFailure)
			return nil
		}
	}
	appLogger.Info("search complete", "hits", len(hits), "version", version)
	return nil
}
