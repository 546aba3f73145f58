package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"votex-ledger/blockchain/ledger"
	"votex-ledger/encryption"
	"votex-ledger/logger"
)

const (
	PolicyStrict     = "strict"
	PolicyPermissive = "permissive"
)

// Config is the full application configuration loaded from YAML.
type Config struct {
	// Logger configures the zap logger.
	Logger logger.Config `yaml:"logger"`

	// Ledger is passed to ledger.New.
	Ledger ledger.Config `yaml:"ledger"`

	// Service configures vote orchestration around the ledger.
	Service Service `yaml:"service"`

	// Registry points at the elections/voters file. Empty uses built-in data.
	Registry Registry `yaml:"registry"`

	// Storage configures chain snapshot export.
	Storage Storage `yaml:"storage"`
}

type Service struct {
	// Policy is "strict" or "permissive"; see service.Policy.
	Policy          string        `yaml:"policy"`
	BatchSize       int           `yaml:"batch_size"`
	QueueSize       int           `yaml:"queue_size"`
	SessionDuration time.Duration `yaml:"session_duration"`
	ByzantineNodes  int           `yaml:"byzantine_nodes"`
}

type Registry struct {
	Path string `yaml:"path"`
}

type Storage struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Logger: logger.Config{
			Enabled:     true,
			Environment: "development",
			Level:       "info",
		},
		Ledger: ledger.DefaultConfig(),
		Service: Service{
			Policy:          PolicyStrict,
			BatchSize:       1,
			QueueSize:       64,
			SessionDuration: 24 * time.Hour,
		},
		Storage: Storage{Dir: "data"},
	}
}

// Load reads filename over Default, so omitted keys keep their defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", filename)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.Ledger.NodeCount < 1 {
		return errors.Errorf("ledger.node_count must be positive, got %d", c.Ledger.NodeCount)
	}
	if c.Ledger.Difficulty < 0 || c.Ledger.Difficulty > 2*encryption.DigestSize {
		return errors.Errorf("ledger.difficulty must be within [0, %d], got %d", 2*encryption.DigestSize, c.Ledger.Difficulty)
	}
	if _, err := encryption.NewHasher(c.Ledger.Hash); err != nil {
		return errors.Wrap(err, "ledger.hash")
	}

	switch strings.ToLower(c.Service.Policy) {
	case PolicyStrict, PolicyPermissive:
	default:
		return errors.Errorf("service.policy must be %q or %q, got %q", PolicyStrict, PolicyPermissive, c.Service.Policy)
	}
	if c.Service.BatchSize < 1 {
		return errors.Errorf("service.batch_size must be positive, got %d", c.Service.BatchSize)
	}
	if c.Service.QueueSize < 1 {
		return errors.Errorf("service.queue_size must be positive, got %d", c.Service.QueueSize)
	}
	if c.Service.SessionDuration <= 0 {
		return errors.Errorf("service.session_duration must be positive, got %s", c.Service.SessionDuration)
	}
	if c.Service.ByzantineNodes < 0 {
		return errors.Errorf("service.byzantine_nodes must not be negative, got %d", c.Service.ByzantineNodes)
	}

	return nil
}
