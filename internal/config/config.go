// Package config loads, validates, and documents the simulator
// configuration. Files are YAML; a .env file and a few environment
// variables override the obvious deployment knobs.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/deltastream-lab/tradesim/internal/commission"
	"github.com/deltastream-lab/tradesim/internal/orderbook"
	"github.com/deltastream-lab/tradesim/internal/risk"
	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/internal/version"
	"github.com/deltastream-lab/tradesim/pkg/errors"
)

// CurrentSchemaVersion is the config schema this build reads. Configs with
// a different major or minor version are refused at load time.
const CurrentSchemaVersion = "1.0.0"

// Duration accepts YAML strings like "500ms" or "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}

	*d = Duration(parsed)

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" jsonschema:"title=Listen Address,description=host:port the HTTP API binds to" validate:"required"`
	// AllowedOrigins restricts CORS; empty allows every origin.
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" jsonschema:"title=Allowed Origins,description=CORS origins allowed to call the API"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	// Path of the database file. Empty runs fully in memory.
	Path string `yaml:"path" json:"path" jsonschema:"title=Database Path,description=DuckDB file path; empty for in-memory"`
	// ReplayOnStart rebuilds positions and portfolios from the persisted
	// trade log before the server accepts traffic.
	ReplayOnStart bool `yaml:"replay_on_start" json:"replay_on_start" jsonschema:"title=Replay On Start,description=Rebuild derived state from the trade log at boot"`
}

// MarketConfig configures the simulated market.
type MarketConfig struct {
	// Seed drives book seeding and the price walk. Zero picks a seed from
	// the clock.
	Seed int64                `yaml:"seed" json:"seed" jsonschema:"title=Random Seed,description=Seed for depth generation and the price walk; 0 derives one from the clock"`
	Book orderbook.SeedConfig `yaml:"book" json:"book" jsonschema:"title=Book Seeding,description=Synthetic depth generation parameters"`
	// PriceSeeds are per-symbol reference prices used before a symbol has
	// traded. Unlisted symbols start at the default reference price.
	PriceSeeds map[string]float64 `yaml:"price_seeds" json:"price_seeds" jsonschema:"title=Price Seeds,description=Initial reference price per symbol"`
	// WalkVolatility is the per-tick fractional volatility of the random
	// walk that moves reference prices. Zero disables the walk.
	WalkVolatility float64  `yaml:"walk_volatility" json:"walk_volatility" jsonschema:"title=Walk Volatility,description=Per-tick fractional volatility of the reference price walk" validate:"gte=0"`
	TickInterval   Duration `yaml:"tick_interval" json:"tick_interval" jsonschema:"title=Tick Interval,description=How often reference prices move,default=5s"`
}

// EventsConfig configures execution event fan-out.
type EventsConfig struct {
	// BusBuffer is the per-subscriber channel depth of the in-process bus.
	BusBuffer int `yaml:"bus_buffer" json:"bus_buffer" jsonschema:"title=Bus Buffer,description=Per-subscriber buffer of the in-process event bus" validate:"gte=0"`
	// NATSURL enables publishing execution events to NATS when non-empty.
	NATSURL       string `yaml:"nats_url" json:"nats_url" jsonschema:"title=NATS URL,description=NATS server URL; empty disables NATS publishing"`
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix" jsonschema:"title=Subject Prefix,description=Prefix for NATS subjects"`
}

// Config is the root configuration of the simulator.
type Config struct {
	SchemaVersion string            `yaml:"schema_version" json:"schema_version" jsonschema:"title=Schema Version,description=Config schema version this file was written for" validate:"required"`
	InitialCash   float64           `yaml:"initial_cash" json:"initial_cash" jsonschema:"title=Initial Cash,description=Starting cash for every new portfolio,minimum=0" validate:"gt=0"`
	Broker        commission.Broker `yaml:"broker" json:"broker" jsonschema:"title=Broker,description=The broker used for commission calculations" validate:"oneof=discount_broker zero_commission"`
	Products      []types.Product   `yaml:"products" json:"products" jsonschema:"title=Products,description=Tradable contracts and their margin inputs" validate:"min=1,dive"`
	Risk          risk.Limits       `yaml:"risk" json:"risk" jsonschema:"title=Risk Limits,description=Pre-trade risk rule limits"`
	Market        MarketConfig      `yaml:"market" json:"market" jsonschema:"title=Market,description=Simulated market parameters"`
	Server        ServerConfig      `yaml:"server" json:"server" jsonschema:"title=Server,description=HTTP API settings"`
	Database      DatabaseConfig    `yaml:"database" json:"database" jsonschema:"title=Database,description=Persistence settings"`
	Events        EventsConfig      `yaml:"events" json:"events" jsonschema:"title=Events,description=Execution event fan-out settings"`
}

// DefaultConfig returns the configuration the service runs with when no
// file is given.
func DefaultConfig() Config {
	return Config{
		SchemaVersion: CurrentSchemaVersion,
		InitialCash:   1_000_000,
		Broker:        commission.BrokerDiscount,
		Products:      types.DefaultProducts(),
		Risk:          risk.DefaultLimits(),
		Market: MarketConfig{
			Seed: 0,
			Book: orderbook.DefaultSeedConfig(),
			PriceSeeds: map[string]float64{
				"NIFTY24500CE":     125.50,
				"NIFTY24500PE":     118.25,
				"BANKNIFTY46500CE": 310.00,
				"BANKNIFTY46500PE": 295.50,
				"FINNIFTY21500CE":  95.75,
			},
			WalkVolatility: 0.002,
			TickInterval:   Duration(5 * time.Second),
		},
		Server: ServerConfig{
			Addr:           ":8007",
			AllowedOrigins: nil,
		},
		Database: DatabaseConfig{
			Path:          "data/tradesim.duckdb",
			ReplayOnStart: true,
		},
		Events: EventsConfig{
			BusBuffer:     64,
			NATSURL:       "",
			SubjectPrefix: "tradesim.events",
		},
	}
}

// Load reads the config file at path on top of the defaults, applies
// environment overrides, and validates the result. An empty path loads
// defaults plus environment only.
func Load(path string) (Config, error) {
	// A .env file is optional; variables already set win.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeConfigParseFailed, err, "failed to read config file %s", path)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeConfigParseFailed, err, "failed to parse config file %s", path)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyEnvOverrides maps the deployment-facing environment variables onto
// the config. PORT mirrors the conventional container contract.
func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}

	if path, ok := os.LookupEnv("TRADESIM_DB_PATH"); ok {
		cfg.Database.Path = path
	}

	if url, ok := os.LookupEnv("NATS_URL"); ok {
		cfg.Events.NATSURL = url
	}
}

// Validate checks field constraints and the schema version gate.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	if err := version.CheckSchemaCompatibility(c.SchemaVersion, CurrentSchemaVersion); err != nil {
		return err
	}

	return nil
}

// GenerateSchema generates a JSON schema for the Config.
func (c *Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(Duration(0)) {
				return &jsonschema.Schema{
					Type:        "string",
					Description: "Go duration string, e.g. 5s or 500ms",
				}
			}

			if strings.Contains(t.String(), "commission.Broker") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission.AllBrokers,
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "tradesim-config"
	schema.Description = fmt.Sprintf("Configuration schema for the trading simulator (schema version %s)", CurrentSchemaVersion)
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}
