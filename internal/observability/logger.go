package observability

import (
	"github.com/danmuck/signalctl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs the runtime logger tagged with app. The
// SIGNALCTL_LOG_* environment overrides apply.
func InitLogger(app string) zerolog.Logger {
	cfg := logging.Resolve(logging.ProfileRuntime)
	logger := NewAppLogger(cfg, app)
	zerolog.SetGlobalLevel(cfg.Level)
	log.Logger = logger
	return logger
}

func NewAppLogger(cfg logging.Config, app string) zerolog.Logger {
	return logging.New(cfg).With().Str("app", app).Logger()
}
