package config

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	cli "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	SourceBeaconcha  = "beaconcha"
	SourceBeaconNode = "beacon-node"
)

type OracleConfig struct {
	LogLevel          string        `json:"log-level" yaml:"log-level"`
	LogFormat         string        `json:"log-format" yaml:"log-format"`
	IndexFile         string        `json:"index-file" yaml:"index-file"`
	IndexOrder        string        `json:"index-order" yaml:"index-order"`
	Source            string        `json:"source" yaml:"source"`
	BeaconchaEndpoint string        `json:"beaconcha-endpoint" yaml:"beaconcha-endpoint"`
	BnEndpoint        string        `json:"bn-endpoint" yaml:"bn-endpoint"`
	ElEndpoint        string        `json:"el-endpoint" yaml:"el-endpoint"`
	RewardAddress     string        `json:"reward-address" yaml:"reward-address"`
	BatchSize         int           `json:"batch-size" yaml:"batch-size"`
	CallsPerMinute    int           `json:"calls-per-minute" yaml:"calls-per-minute"`
	MaxConcurrent     int           `json:"max-concurrent" yaml:"max-concurrent"`
	RequestTimeout    time.Duration `json:"request-timeout" yaml:"request-timeout"`
	ExpectedLabel     string        `json:"expected-label" yaml:"expected-label"`
	FeeRate           string        `json:"fee-rate" yaml:"fee-rate"`
	RewardAdjustment  int64         `json:"reward-adjustment" yaml:"reward-adjustment"` // gwei
	ReportFormat      string        `json:"report-format" yaml:"report-format"`
	PushgatewayUrl    string        `json:"pushgateway-url" yaml:"pushgateway-url"`
}

func NewOracleConfig() *OracleConfig {
	// Return Default values for the oracle configuration
	return &OracleConfig{
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
		IndexFile:         DefaultIndexFile,
		IndexOrder:        DefaultIndexOrder,
		Source:            DefaultSource,
		BeaconchaEndpoint: DefaultBeaconchaEndpoint,
		BnEndpoint:        DefaultBnEndpoint,
		ElEndpoint:        DefaultElEndpoint,
		RewardAddress:     DefaultRewardAddress,
		BatchSize:         DefaultBatchSize,
		CallsPerMinute:    DefaultCallsPerMinute,
		MaxConcurrent:     DefaultMaxConcurrent,
		RequestTimeout:    DefaultRequestTimeout,
		ExpectedLabel:     DefaultExpectedLabel,
		FeeRate:           DefaultFeeRate,
		RewardAdjustment:  DefaultRewardAdjustment,
		ReportFormat:      DefaultReportFormat,
		PushgatewayUrl:    DefaultPushgatewayUrl,
	}
}

// LoadFile overrides the current values with the keys present in a yaml file.
func (c *OracleConfig) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "error opening config file %s", path)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return errors.Wrapf(err, "error decoding config file %s", path)
	}
	return nil
}

func (c *OracleConfig) Apply(ctx *cli.Context) {
	// apply to the existing Default configuration the set flags
	// log level
	if ctx.IsSet("log-level") {
		c.LogLevel = ctx.String("log-level")
	}
	if ctx.IsSet("log-format") {
		c.LogFormat = ctx.String("log-format")
	}
	// validator index file
	if ctx.IsSet("index-file") {
		c.IndexFile = ctx.String("index-file")
	}
	if ctx.IsSet("index-order") {
		c.IndexOrder = ctx.String("index-order")
	}
	// validator source
	if ctx.IsSet("source") {
		c.Source = ctx.String("source")
	}
	if ctx.IsSet("beaconcha-endpoint") {
		c.BeaconchaEndpoint = ctx.String("beaconcha-endpoint")
	}
	// cl url
	if ctx.IsSet("bn-endpoint") {
		c.BnEndpoint = ctx.String("bn-endpoint")
	}
	// el url
	if ctx.IsSet("el-endpoint") {
		c.ElEndpoint = ctx.String("el-endpoint")
	}
	if ctx.IsSet("reward-address") {
		c.RewardAddress = ctx.String("reward-address")
	}
	// fetcher
	if ctx.IsSet("batch-size") {
		c.BatchSize = ctx.Int("batch-size")
	}
	if ctx.IsSet("calls-per-minute") {
		c.CallsPerMinute = ctx.Int("calls-per-minute")
	}
	if ctx.IsSet("max-concurrent") {
		c.MaxConcurrent = ctx.Int("max-concurrent")
	}
	if ctx.IsSet("request-timeout") {
		c.RequestTimeout = ctx.Duration("request-timeout")
	}
	// aggregation
	if ctx.IsSet("expected-label") {
		c.ExpectedLabel = ctx.String("expected-label")
	}
	if ctx.IsSet("fee-rate") {
		c.FeeRate = ctx.String("fee-rate")
	}
	if ctx.IsSet("reward-adjustment") {
		c.RewardAdjustment = ctx.Int64("reward-adjustment")
	}
	// output
	if ctx.IsSet("report-format") {
		c.ReportFormat = ctx.String("report-format")
	}
	if ctx.IsSet("pushgateway-url") {
		c.PushgatewayUrl = ctx.String("pushgateway-url")
	}
}

func (c *OracleConfig) FeeRateDecimal() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.FeeRate)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "invalid fee rate %q", c.FeeRate)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, errors.Errorf("fee rate %s out of [0, 1]", rate)
	}
	return rate, nil
}

// Validate checks the fields a run can not start without.
func (c *OracleConfig) Validate() error {
	switch c.Source {
	case SourceBeaconcha:
		if c.BeaconchaEndpoint == "" {
			return errors.New("beaconcha-endpoint is required for the beaconcha source")
		}
	case SourceBeaconNode:
		if c.BnEndpoint == "" {
			return errors.New("bn-endpoint is required for the beacon-node source")
		}
	default:
		return errors.Errorf("unknown source %q, expected %s or %s", c.Source, SourceBeaconcha, SourceBeaconNode)
	}
	if c.IndexFile == "" {
		return errors.New("index-file is required")
	}
	if c.ElEndpoint == "" {
		return errors.New("el-endpoint is required, the execution layer reward is part of the price")
	}
	if !common.IsHexAddress(c.RewardAddress) {
		return errors.Errorf("reward-address %q is not a valid address", c.RewardAddress)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch-size must be positive, got %d", c.BatchSize)
	}
	if c.CallsPerMinute < 0 {
		return errors.Errorf("calls-per-minute can not be negative, got %d", c.CallsPerMinute)
	}
	if c.MaxConcurrent <= 0 {
		return errors.Errorf("max-concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if _, err := c.FeeRateDecimal(); err != nil {
		return err
	}
	return nil
}
