package cmd

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bascanada/logmerge/internal/config"
	"github.com/bascanada/logmerge/pkg/server"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP façade over the pagination service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to listen on")
	serveCmd.Flags().StringVarP(&serveHost, "host", "H", "0.0.0.0", "host to bind to")
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg *config.SessionConfig
	if sessionConfigPath != "" {
		path, err := config.ResolveConfigPath(sessionConfigPath)
		if err != nil {
			appLogger.Error("failed to resolve config path", "err", err)
			os.Exit(ExitInvalidConfig)
			return nil
		}
		cfg, err = config.Load(path)
		if err != nil {
			appLogger.Error("invalid session config", "path", path, "err", err)
			os.Exit(ExitInvalidConfig)
			return nil
		}
	} else {
		cfg = &config.SessionConfig{}
	}

	s, err := server.NewServer(serveHost, strconv.Itoa(servePort), cfg, sessionConfigPath, appLogger)
	if err != nil {
		appLogger.Error("failed to create server", "err", err)
		os.Exit(ExitInvalidConfig)
		return nil
	}

	if err := s.Start(); err != nil {
		appLogger.Error("server failed", "err", err)
		os.Exit(ExitIOFailure)
	}
	return nil
}
