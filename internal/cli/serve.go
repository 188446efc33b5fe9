package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/batch-solver/internal/aggregator"
	"github.com/hxuan190/batch-solver/internal/config"
	"github.com/hxuan190/batch-solver/internal/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP solve API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	conf := container.NewConf(
		&config.GeneralConfig{},
		&config.SolverConfig{},
		&config.CacheConfig{},
		&config.ArchiveConfig{},
	)

	dic, err := container.New(
		conf,

		&aggregator.Service{},
		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return err
	}

	// Run blocks until SIGINT or SIGTERM and leaves Stop to the caller.
	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return err
	}

	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}
