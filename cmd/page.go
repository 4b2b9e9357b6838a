package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bascanada/logmerge/internal/engine/pagination"
	applog "github.com/bascanada/logmerge/pkg/log"
)

var (
	pageManifestDir string
	pageStart       int
	pageEnd         int
	pagePretty      bool
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Read a logical ascending range of lines from an existing manifest",
	RunE:  runPage,
}

func init() {
	pageCmd.Flags().StringVar(&pageManifestDir, "manifest-dir", "", "directory containing manifest.json and its chunks")
	pageCmd.Flags().IntVar(&pageStart, "start", 1, "1-based ascending start index (inclusive)")
	pageCmd.Flags().IntVar(&pageEnd, "end", 0, "1-based ascending end index (inclusive)")
	pageCmd.Flags().BoolVar(&pagePretty, "pretty", false, "print colorized human-readable lines instead of NDJSON")
}

func runPage(cmd *cobra.Command, args []string) error {
	if pageManifestDir == "" {
		appLogger.Error("--manifest-dir is required")
		os.Exit(ExitInvalidConfig)
		return nil
	}

	svc := pagination.New()
	if err := svc.SetManifestDir(pageManifestDir); err != nil {
		appLogger.Error("failed to open manifest", "err", err)
		os.Exit(ExitIOFailure)
		return nil
	}

	end := pageEnd
	if end <= 0 {
		end = svc.GetFileTotal()
	}

	page, err := svc.ReadRangeByIdx(context.Background(), pageStart, end)
	if err != nil {
		appLogger.Error("readRangeByIdx failed", "err", err)
		os.Exit(ExitIOFailure)
		return nil
	}

	if pagePretty {
		applog.InitColorState(nil, os.Stdout)
		for _, e := range page.Logs {
			fmt.Fprintln(os.Stdout, applog.FormatEntry(e))
		}
	} else {
		enc := json.NewEncoder(os.Stdout)
		for _, e := range page.Logs {
			if err := enc.Encode(e); err != nil {
				appLogger.Error("failed to encode entry", "err", err)
				os.Exit(ExitIOFailure)
				return nil
			}
		}
	}
	fmt.Fprintf(os.Stderr, "%d..%d of version %d\n", page.StartIdx, page.EndIdx, page.Version)
	return nil
}
