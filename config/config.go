package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/depositledger/internal/domain"
)

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("invalid config")

const (
	DriverMemory = "memory"
	DriverWAL    = "wal"
	DriverSQLite = "sqlite"
)

const (
	defaultBatchSize     = 2000
	defaultConfirmations = 12
	defaultPollInterval  = 15 * time.Second
	defaultHeaderWorkers = 8
	defaultLogLevel      = "info"
)

type Config struct {
	RPCURL        string
	StartBlock    uint64
	EndBlock      uint64
	BatchSize     uint64
	Confirmations uint64
	PollInterval  time.Duration
	HeaderWorkers int
	LogLevel      string
	Store         StoreConfig
	Addresses     domain.Addresses
}

type StoreConfig struct {
	Driver string
	Path   string
}

type ConfigTmp struct {
	RPCURL        string        `yaml:"rpc_url"`
	StartBlock    uint64        `yaml:"start_block"`
	EndBlock      uint64        `yaml:"end_block,omitempty"`
	BatchSize     uint64        `yaml:"batch_size,omitempty"`
	Confirmations *uint64       `yaml:"confirmations,omitempty"`
	PollInterval  time.Duration `yaml:"poll_interval,omitempty"`
	HeaderWorkers int           `yaml:"header_workers,omitempty"`
	LogLevel      string        `yaml:"log_level,omitempty"`
	Store         struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"store"`
	Contracts struct {
		Vault  string `yaml:"vault"`
		Pool   string `yaml:"pool"`
		Stable string `yaml:"stable"`
	} `yaml:"contracts"`
	Addresses struct {
		Intermediary string `yaml:"intermediary"`
		Collection   string `yaml:"collection"`
		Redemption   string `yaml:"redemption"`
	} `yaml:"addresses"`
}

// Get reads the configuration from the yaml file named by -config, or from flags.
func Get() (Config, error) {
	return Parse(flag.CommandLine, os.Args[1:])
}

// Parse reads the configuration from args using fs.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	var tmp ConfigTmp

	path := fs.String("config", "", "path to yaml config")
	fs.StringVar(&tmp.RPCURL, "rpc", "", "ethereum json-rpc url")
	fs.Uint64Var(&tmp.StartBlock, "start", 0, "first block to index")
	fs.Uint64Var(&tmp.EndBlock, "end", 0, "last block to index, 0 follows the chain head")
	fs.Uint64Var(&tmp.BatchSize, "batch", defaultBatchSize, "blocks per log query")
	confirmations := fs.Uint64("confirmations", defaultConfirmations, "blocks behind head considered final")
	fs.DurationVar(&tmp.PollInterval, "poll", defaultPollInterval, "head poll interval when caught up")
	fs.IntVar(&tmp.HeaderWorkers, "header-workers", defaultHeaderWorkers, "concurrent block header requests")
	fs.StringVar(&tmp.LogLevel, "log-level", defaultLogLevel, "debug, info, warn or error")
	fs.StringVar(&tmp.Store.Driver, "store", DriverMemory, "store driver: memory, wal or sqlite")
	fs.StringVar(&tmp.Store.Path, "store-path", "", "store directory (wal) or database file (sqlite)")
	fs.StringVar(&tmp.Contracts.Vault, "vault", "", "vault share token address")
	fs.StringVar(&tmp.Contracts.Pool, "pool", "", "pool share token address")
	fs.StringVar(&tmp.Contracts.Stable, "stable", "", "stable deposit token address")
	fs.StringVar(&tmp.Addresses.Intermediary, "intermediary", "", "intermediary deposit router address")
	fs.StringVar(&tmp.Addresses.Collection, "collection", "", "stable collection address")
	fs.StringVar(&tmp.Addresses.Redemption, "redemption", "", "pool redemption address")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *path != "" {
		return Load(*path)
	}

	tmp.Confirmations = confirmations

	return fromTmp(tmp)
}

// Load reads a yaml configuration file.
func Load(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, errors.Wrap(err, "parse yaml config")
	}

	return fromTmp(tmp)
}

func fromTmp(c ConfigTmp) (Config, error) {
	conf := Config{
		RPCURL:        c.RPCURL,
		StartBlock:    c.StartBlock,
		EndBlock:      c.EndBlock,
		BatchSize:     c.BatchSize,
		Confirmations: defaultConfirmations,
		PollInterval:  c.PollInterval,
		HeaderWorkers: c.HeaderWorkers,
		LogLevel:      c.LogLevel,
		Store:         StoreConfig{Driver: strings.ToLower(c.Store.Driver), Path: c.Store.Path},
	}

	if c.Confirmations != nil {
		conf.Confirmations = *c.Confirmations
	}
	if conf.BatchSize == 0 {
		conf.BatchSize = defaultBatchSize
	}
	if conf.PollInterval == 0 {
		conf.PollInterval = defaultPollInterval
	}
	if conf.HeaderWorkers == 0 {
		conf.HeaderWorkers = defaultHeaderWorkers
	}
	if conf.LogLevel == "" {
		conf.LogLevel = defaultLogLevel
	}
	if conf.Store.Driver == "" {
		conf.Store.Driver = DriverMemory
	}

	var err error
	fields := []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"contracts.vault", c.Contracts.Vault, &conf.Addresses.Vault},
		{"contracts.pool", c.Contracts.Pool, &conf.Addresses.Pool},
		{"contracts.stable", c.Contracts.Stable, &conf.Addresses.Stable},
		{"addresses.intermediary", c.Addresses.Intermediary, &conf.Addresses.Intermediary},
		{"addresses.collection", c.Addresses.Collection, &conf.Addresses.Collection},
		{"addresses.redemption", c.Addresses.Redemption, &conf.Addresses.Redemption},
	}
	for _, f := range fields {
		if *f.dst, err = parseAddress(f.name, f.value); err != nil {
			return Config{}, err
		}
	}

	if err := conf.Validate(); err != nil {
		return Config{}, err
	}

	return conf, nil
}

func parseAddress(name, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, errors.Wrapf(ErrInvalid, "%s: %q is not a hex address", name, value)
	}

	return common.HexToAddress(value), nil
}

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return errors.Wrap(ErrInvalid, "rpc_url is required")
	}
	if len(c.Addresses.Contracts()) == 0 {
		return errors.Wrap(ErrInvalid, "at least one of contracts.vault, contracts.pool, contracts.stable is required")
	}
	if c.EndBlock != 0 && c.EndBlock < c.StartBlock {
		return errors.Wrapf(ErrInvalid, "end_block %d is before start_block %d", c.EndBlock, c.StartBlock)
	}
	if c.HeaderWorkers < 0 {
		return errors.Wrapf(ErrInvalid, "header_workers must be positive, got %d", c.HeaderWorkers)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverWAL, DriverSQLite:
		if c.Store.Path == "" {
			return errors.Wrapf(ErrInvalid, "store.path is required for the %s driver", c.Store.Driver)
		}
	default:
		return errors.Wrapf(ErrInvalid, "unknown store.driver %q", c.Store.Driver)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Wrapf(ErrInvalid, "unknown log_level %q", c.LogLevel)
	}

	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("rpc=%s blocks=%d..%d batch=%d confirmations=%d store=%s",
		c.RPCURL, c.StartBlock, c.EndBlock, c.BatchSize, c.Confirmations, c.Store.Driver)
}
