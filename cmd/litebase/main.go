package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := RootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("litebase: fatal error")
		os.Exit(1)
	}
}
