package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/batch-solver/internal/cli"
	"github.com/hxuan190/batch-solver/internal/common"
)

// @title Batch Solver API
// @version 1.0
// @description Batch-auction solver for limit orders between token pairs.
// @description
// @description ## - Features
// @description - **Token-pair clearing**: uniform exchange rate maximizing matched volume
// @description - **Fee settlement**: trading fee collected in the fee token, with an extra fee-token leg when needed
// @description - **Exact arithmetic**: rational amounts, integer rounding with full validation
// @description - **Best-pair search**: parallel evaluation of every eligible pair
// @description
// @description ## - Usage Tips
// @description - Amounts and balances are integers in the token's smallest unit
// @description - Fee ratio is a decimal in [0, 1)
// @description - Solutions of completed runs are cached; time-limited ones are not
// @BasePath /
// @schemes http https
// @tag.name solve
// @tag.description Solve problem instances and browse archived solutions

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	common.InitRuntime()

	// .env is optional for the CLI.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load env")
	}

	cli.Execute()
}
