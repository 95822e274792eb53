package engine

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"

	"github.com/simfolio-lab/simfolio/internal/calendar"
	"github.com/simfolio-lab/simfolio/internal/execution/commission"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// SlippageModelName selects the slippage model.
type SlippageModelName string

const (
	SlippageNone        SlippageModelName = "none"
	SlippageVolumeShare SlippageModelName = "volume_share"
)

// SimulationConfig is the engine configuration.
type SimulationConfig struct {
	StartTime    time.Time         `yaml:"start_time" json:"start_time" validate:"required" jsonschema:"title=Start Time,description=First session date of the simulation"`
	EndTime      time.Time         `yaml:"end_time" json:"end_time" validate:"required" jsonschema:"title=End Time,description=Last session date of the simulation"`
	Calendar     string            `yaml:"calendar" json:"calendar" jsonschema:"title=Calendar,description=Trading calendar name,default=weekday"`
	EmissionRate types.Frequency   `yaml:"emission_rate" json:"emission_rate" validate:"required" jsonschema:"title=Emission Rate,description=Bar frequency the clock emits at"`
	StartingCash float64           `yaml:"starting_cash" json:"starting_cash" validate:"required,gt=0" jsonschema:"title=Starting Cash,description=Starting capital in USD,minimum=0"`
	Broker       commission.Broker `yaml:"broker" json:"broker" jsonschema:"title=Broker,description=Broker preset for commission calculations"`
	// Slippage model and its parameters. Zero parameters take the model
	// defaults.
	Slippage            SlippageModelName `yaml:"slippage" json:"slippage" jsonschema:"title=Slippage Model,description=Slippage model applied to fills"`
	SlippageVolumeLimit float64           `yaml:"slippage_volume_limit" json:"slippage_volume_limit" jsonschema:"title=Volume Limit,description=Maximum fraction of bar volume one order may consume"`
	SlippagePriceImpact float64           `yaml:"slippage_price_impact" json:"slippage_price_impact" jsonschema:"title=Price Impact,description=Quadratic price impact constant"`
	// AllowMargin permits negative cash and short positions.
	AllowMargin bool `yaml:"allow_margin" json:"allow_margin" jsonschema:"title=Allow Margin,description=Permit negative cash balances and short selling"`
	// StopOnError aborts the run on the first strategy callback error
	// instead of recording it and continuing.
	StopOnError bool `yaml:"stop_on_error" json:"stop_on_error" jsonschema:"title=Stop On Error,description=Abort the run on the first strategy error"`
	// BenchmarkSymbol derives the benchmark return series from a symbol's
	// bundle data.
	BenchmarkSymbol optional.Option[string] `yaml:"benchmark_symbol" json:"benchmark_symbol" jsonschema:"title=Benchmark Symbol,description=Optional symbol whose returns serve as the benchmark"`
	// StrategyConfig is the raw payload handed to Strategy.Initialize.
	StrategyConfig string `yaml:"strategy_config" json:"strategy_config" jsonschema:"title=Strategy Config,description=Opaque configuration payload passed to the strategy"`
}

// UnmarshalYAML implements custom unmarshaling for SimulationConfig.
func (c *SimulationConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type Config struct {
		StartTime           time.Time         `yaml:"start_time"`
		EndTime             time.Time         `yaml:"end_time"`
		Calendar            string            `yaml:"calendar"`
		EmissionRate        types.Frequency   `yaml:"emission_rate"`
		StartingCash        float64           `yaml:"starting_cash"`
		Broker              commission.Broker `yaml:"broker"`
		Slippage            SlippageModelName `yaml:"slippage"`
		SlippageVolumeLimit float64           `yaml:"slippage_volume_limit"`
		SlippagePriceImpact float64           `yaml:"slippage_price_impact"`
		AllowMargin         bool              `yaml:"allow_margin"`
		StopOnError         bool              `yaml:"stop_on_error"`
		BenchmarkSymbol     *string           `yaml:"benchmark_symbol"`
		StrategyConfig      string            `yaml:"strategy_config"`
	}

	var config Config
	if err := unmarshal(&config); err != nil {
		return err
	}

	c.StartTime = config.StartTime
	c.EndTime = config.EndTime
	c.Calendar = config.Calendar
	c.EmissionRate = config.EmissionRate
	c.StartingCash = config.StartingCash
	c.Broker = config.Broker
	c.Slippage = config.Slippage
	c.SlippageVolumeLimit = config.SlippageVolumeLimit
	c.SlippagePriceImpact = config.SlippagePriceImpact
	c.AllowMargin = config.AllowMargin
	c.StopOnError = config.StopOnError
	c.StrategyConfig = config.StrategyConfig

	if config.BenchmarkSymbol != nil {
		c.BenchmarkSymbol = optional.Some(*config.BenchmarkSymbol)
	}

	return nil
}

// Validate checks the configuration for a runnable simulation.
func (c *SimulationConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid simulation config", err)
	}

	if c.EndTime.Before(c.StartTime) {
		return errors.Newf(errors.ErrCodeInvalidRange, "end time %s is before start time %s", c.EndTime, c.StartTime)
	}

	if !c.EmissionRate.IsValid() {
		return errors.Newf(errors.ErrCodeInvalidFrequency, "invalid emission rate: %s", c.EmissionRate)
	}

	if c.Calendar == "" {
		c.Calendar = calendar.NameWeekday
	}

	if _, err := calendar.Get(c.Calendar); err != nil {
		return err
	}

	return nil
}

// EmptyConfig returns the zero configuration.
func EmptyConfig() SimulationConfig {
	return SimulationConfig{}
}

// GenerateSchema generates a JSON schema for the SimulationConfig.
func (c *SimulationConfig) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[string]" {
				return &jsonschema.Schema{
					Type: "string",
				}
			}
			if strings.Contains(t.String(), "commission.Broker") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission.AllBrokers,
				}
			}
			if strings.Contains(t.String(), "SlippageModelName") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: []any{SlippageNone, SlippageVolumeShare},
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "simulation-config"
	schema.Description = "Configuration schema for the simulation engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates the JSON schema as an indented string.
func (c *SimulationConfig) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// TestConfig returns a runnable configuration for tests.
func TestConfig(start time.Time, end time.Time, emissionRate types.Frequency, startingCash float64) SimulationConfig {
	return SimulationConfig{
		StartTime:    start,
		EndTime:      end,
		Calendar:     calendar.NameAlwaysOpen,
		EmissionRate: emissionRate,
		StartingCash: startingCash,
		Broker:       commission.BrokerZero,
		Slippage:     SlippageNone,
	}
}
