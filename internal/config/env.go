package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env is the process environment w3raffle reads, matching the variables the
// Hardhat project uses (.env).
type Env struct {
	SepoliaRPCURL    string  `env:"SEPOLIA_RPC_URL"`
	PrivateKey       string  `env:"PRIVATE_KEY"`
	EtherscanAPIKey  string  `env:"ETHERSCAN_API_KEY"`
	UpdateFrontend   string  `env:"UPDATE_FRONTEND"`
	ConfigDir        string  `env:"W3RAFFLE_CONFIG_DIR"`
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatIDs  []int64 `env:"TELEGRAM_CHAT_ID" envSeparator:","`
	RPCRateLimit     float64 `env:"RPC_RATE_LIMIT"` // requests per second, 0 = unlimited
}

// FrontendUpdates reports whether deployments should refresh the frontend
// files. Any non-empty UPDATE_FRONTEND enables it.
func (e *Env) FrontendUpdates() bool { return e.UpdateFrontend != "" }

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (*Env, error) {
	var e Env
	if err := ParseEnv(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// LoadEnvFrom reads Env from the given variables instead of os.Environ.
func LoadEnvFrom(vars map[string]string) (*Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &e, nil
}
