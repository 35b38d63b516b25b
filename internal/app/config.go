package app

import (
	"strings"
	"time"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/utils"
)

const (
	DispatchModeLocal    = "local"
	DispatchModeTemporal = "temporal"
)

type Config struct {
	Port        string
	ServiceName string
	Environment string
	Version     string
	CORSOrigins []string

	DispatchMode        string
	MaxConcurrentStages int
	StaleAfter          time.Duration
	SweepEvery          time.Duration

	RedisAddr string
}

func LoadConfig(log *logger.Logger) Config {
	mode := strings.ToLower(strings.TrimSpace(utils.GetEnv("DISPATCH_MODE", DispatchModeLocal, log)))
	if mode != DispatchModeTemporal {
		mode = DispatchModeLocal
	}
	origins := []string{}
	for _, o := range strings.Split(utils.GetEnv("CORS_ORIGINS", "", log), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return Config{
		Port:        utils.GetEnv("PORT", "8080", log),
		ServiceName: utils.GetEnv("SERVICE_NAME", "courseforge", log),
		Environment: utils.GetEnv("ENVIRONMENT", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
		CORSOrigins: origins,

		DispatchMode:        mode,
		MaxConcurrentStages: utils.GetEnvAsInt("MAX_CONCURRENT_STAGES", 8, log),
		StaleAfter:          utils.GetEnvAsDuration("WATCHDOG_STALE_AFTER", 2*time.Minute, log),
		SweepEvery:          utils.GetEnvAsDuration("WATCHDOG_SWEEP_EVERY", 30*time.Second, log),

		RedisAddr: utils.GetEnv("REDIS_ADDR", "", log),
	}
}
