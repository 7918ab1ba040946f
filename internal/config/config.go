package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const (
	defaultNetwork        = "hardhat"
	defaultAccount        = "deployer"
	defaultAlgorithm      = "fastest"
	defaultWatchInterval  = 5
	defaultKeeperInterval = 30
	defaultMetricsAddr    = "127.0.0.1:9464"

	// Paths used by the frontend update script, relative to the project root.
	defaultFrontendAddresses = "frontend/my-app/constants/contractAddress.json"
	defaultFrontendABI       = "frontend/my-app/constants/abi.json"
	defaultArtifactsDir      = "artifacts"

	configFile      = "config.json"
	accountsFile    = "accounts.json"
	deploymentsFile = "deployments.json"
	networksFile    = "networks.toml"
	historyFile     = "history.db"
)

// Config holds persistent w3raffle settings.
type Config struct {
	DefaultNetwork      string              `json:"default_network"`
	DefaultAccount      string              `json:"default_account"`
	RPCAlgorithm        string              `json:"rpc_algorithm"`   // "fastest" | "round-robin" | "failover"
	WatchInterval       int                 `json:"watch_interval"`  // seconds
	KeeperInterval      int                 `json:"keeper_interval"` // seconds
	MetricsAddr         string              `json:"metrics_addr"`
	ArtifactsDir        string              `json:"artifacts_dir"`
	FrontendAddressFile string              `json:"frontend_address_file"`
	FrontendABIFile     string              `json:"frontend_abi_file"`
	HistoryPath         string              `json:"history_path,omitempty"`
	CustomRPCs          map[string][]string `json:"custom_rpcs"`

	// internal: config dir path used for Save()
	configDir string
}

// DefaultDir returns ~/.w3raffle.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home dir: %w", err)
	}
	return filepath.Join(home, ".w3raffle"), nil
}

// Load reads config from dir (or creates defaults). dir defaults to ~/.w3raffle.
func Load(dir string) (*Config, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg := defaults(dir)

	path := filepath.Join(dir, configFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.configDir = dir
	if cfg.CustomRPCs == nil {
		cfg.CustomRPCs = make(map[string][]string)
	}

	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.configDir, configFile), data, 0o600)
}

// AddRPC adds a custom RPC URL for a network.
func (c *Config) AddRPC(network, url string) error {
	if c.CustomRPCs == nil {
		c.CustomRPCs = make(map[string][]string)
	}
	if slices.Contains(c.CustomRPCs[network], url) {
		return fmt.Errorf("RPC %s already exists for network %s", url, network)
	}
	c.CustomRPCs[network] = append(c.CustomRPCs[network], url)
	return nil
}

// RemoveRPC removes a custom RPC URL for a network.
func (c *Config) RemoveRPC(network, url string) error {
	rpcs := c.CustomRPCs[network]
	idx := slices.Index(rpcs, url)
	if idx == -1 {
		return fmt.Errorf("RPC %s not found for network %s", url, network)
	}
	c.CustomRPCs[network] = slices.Delete(rpcs, idx, idx+1)
	return nil
}

// GetRPCs returns custom RPCs for a network.
func (c *Config) GetRPCs(network string) []string {
	return c.CustomRPCs[network]
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// AccountsPath is where named accounts are recorded.
func (c *Config) AccountsPath() string { return filepath.Join(c.configDir, accountsFile) }

// DeploymentsPath is where deployed contracts are recorded.
func (c *Config) DeploymentsPath() string { return filepath.Join(c.configDir, deploymentsFile) }

// NetworksPath is the optional networks.toml override file.
func (c *Config) NetworksPath() string { return filepath.Join(c.configDir, networksFile) }

// HistoryDB returns the round history database path.
func (c *Config) HistoryDB() string {
	if c.HistoryPath != "" {
		return c.HistoryPath
	}
	return filepath.Join(c.configDir, historyFile)
}

// --- helpers ---

func defaults(dir string) *Config {
	return &Config{
		DefaultNetwork:      defaultNetwork,
		DefaultAccount:      defaultAccount,
		RPCAlgorithm:        defaultAlgorithm,
		WatchInterval:       defaultWatchInterval,
		KeeperInterval:      defaultKeeperInterval,
		MetricsAddr:         defaultMetricsAddr,
		ArtifactsDir:        defaultArtifactsDir,
		FrontendAddressFile: defaultFrontendAddresses,
		FrontendABIFile:     defaultFrontendABI,
		CustomRPCs:          make(map[string][]string),
		configDir:           dir,
	}
}
