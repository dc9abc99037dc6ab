package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/minbiocabanon/pepettebox/internal/config"
)

var (
	dogstatsd *statsd.Client
	enabled   bool
)

func InitMetrics(cfg *config.Config) {
	if !cfg.EnableDatadog {
		return
	}

	var err error
	dogstatsd, err = statsd.New(cfg.DDAgentAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}

	dogstatsd.Namespace = cfg.DDNamespace
	dogstatsd.Tags = cfg.DDTags
	enabled = true

	log.Info().
		Str("addr", cfg.DDAgentAddr).
		Str("namespace", cfg.DDNamespace).
		Strs("tags", cfg.DDTags).
		Msg("Datadog metrics initialized")
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd != nil {
		err := dogstatsd.Gauge(name, value, tags, 1)
		if err != nil && enabled {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

func Count(name string, value int64, tags ...string) {
	if dogstatsd != nil {
		err := dogstatsd.Count(name, value, tags, 1)
		if err != nil && enabled {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
		}
	}
}
