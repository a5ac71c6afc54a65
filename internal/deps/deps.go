package deps

import (
	"github.com/riftvanta/tms062025/internal/auth"
	"github.com/riftvanta/tms062025/internal/chat"
	"github.com/riftvanta/tms062025/internal/config"
	"go.uber.org/zap"
)

type Deps struct {
	Logger       *zap.SugaredLogger
	TokenManager *auth.TokenManager
	Hub          *chat.Hub
}

func NewDependencies(cfg *config.Config) *Deps {
	return &Deps{
		Logger:       cfg.Logger,
		TokenManager: auth.NewTokenManager(cfg.SecretKey),
		Hub:          chat.NewHub(cfg.Logger),
	}
}
