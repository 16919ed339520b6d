package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/migalabs/vprice/pkg/spec"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Format string

const (
	TextFormat Format = "text"
	JSONFormat Format = "json"
	LogFormat  Format = "log"
)

func ParseFormat(format string) (Format, error) {
	switch Format(format) {
	case TextFormat, JSONFormat, LogFormat:
		return Format(format), nil
	default:
		return "", errors.Errorf("unknown report format %q, expected text, json or log", format)
	}
}

// Summary is the flat, printable view of an AggregateResult.
type Summary struct {
	Timestamp              time.Time `json:"timestamp"`
	TotalValidators        int       `json:"total_validators"`
	TotalEth               string    `json:"total_eth"`
	ConsensusLayerGwei     uint64    `json:"consensus_layer_gwei"`
	ExecutionLayerGwei     uint64    `json:"execution_layer_gwei"`
	RewardAdjustmentGwei   int64     `json:"reward_adjustment_gwei"`
	EffectiveBalanceGwei   uint64    `json:"effective_balance_gwei"`
	TotalWithdrawalsGwei   uint64    `json:"total_withdrawals_gwei"`
	TotalGainsEth          string    `json:"total_gains_eth"`
	FeeRate                string    `json:"fee_rate"`
	FeesEth                string    `json:"fees_eth"`
	CredentialChangedCount int       `json:"credentials_changed"`
	LabelMismatchCount     int       `json:"label_mismatches"`
	ErrorCount             int       `json:"failed_validators"`
	ExitedCount            int       `json:"exited_validators"`
	VirtualPrice           string    `json:"virtual_price"`
	VirtualPricePostFees   string    `json:"virtual_price_post_fees"`
	OraclePrice            string    `json:"oracle_price"`
	OraclePricePostFees    string    `json:"oracle_price_post_fees"`
	UnhealthyValidators    []uint64  `json:"unhealthy_validators"`
	CredentialChanged      []uint64  `json:"credentials_changed_validators"`
}

func NewSummary(result spec.AggregateResult, ts time.Time) Summary {
	report := Summary{
		Timestamp:              ts.UTC(),
		TotalValidators:        result.TotalValidators,
		TotalEth:               result.TotalBalanceEth().String(),
		ConsensusLayerGwei:     uint64(result.ConsensusLayerReward),
		ExecutionLayerGwei:     uint64(result.ExecutionLayerReward),
		RewardAdjustmentGwei:   result.RewardAdjustment,
		EffectiveBalanceGwei:   uint64(result.EffectiveBalance),
		TotalWithdrawalsGwei:   uint64(result.TotalWithdrawals),
		TotalGainsEth:          result.TotalGainsEth().String(),
		FeeRate:                result.FeeRate.String(),
		FeesEth:                spec.GweiToEth(result.Fees).String(),
		CredentialChangedCount: result.CredentialChangedCount,
		LabelMismatchCount:     result.LabelMismatchCount,
		ErrorCount:             result.ErrorCount,
		ExitedCount:            result.ExitedCount,
		VirtualPrice:           result.VirtualPrice.String(),
		VirtualPricePostFees:   result.VirtualPricePostFees.String(),
		OraclePrice:            result.VirtualPriceWei().String(),
		OraclePricePostFees:    result.VirtualPricePostFeesWei().String(),
		UnhealthyValidators:    make([]uint64, 0, len(result.UnhealthyValidators)),
		CredentialChanged:      make([]uint64, 0, len(result.CredentialChangedValidators)),
	}
	for _, idx := range result.UnhealthyValidators {
		report.UnhealthyValidators = append(report.UnhealthyValidators, uint64(idx))
	}
	for _, idx := range result.CredentialChangedValidators {
		report.CredentialChanged = append(report.CredentialChanged, uint64(idx))
	}
	return report
}

func Report(w io.Writer, result spec.AggregateResult, ts time.Time, format Format) error {
	report := NewSummary(result, ts)
	switch format {
	case TextFormat:
		return writeText(w, report)
	case JSONFormat:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case LogFormat:
		writeLog(w, report)
		return nil
	default:
		return errors.Errorf("unknown report format %q", format)
	}
}

func writeText(w io.Writer, r Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]interface{}{
		{"Timestamp", r.Timestamp.Format(time.RFC3339)},
		{"Total Validators", r.TotalValidators},
		{"Total Eth", r.TotalEth},
		{"Consensus Layer (gwei)", r.ConsensusLayerGwei},
		{"Execution Layer (gwei)", r.ExecutionLayerGwei},
		{"Reward Adjustment (gwei)", r.RewardAdjustmentGwei},
		{"Effective Balance (gwei)", r.EffectiveBalanceGwei},
		{"Total Withdrawals (gwei)", r.TotalWithdrawalsGwei},
		{"Creds Changed", r.CredentialChangedCount},
		{"Name Changed Validators", r.LabelMismatchCount},
		{"Failed Validators", r.ErrorCount},
		{"Exited Validators", r.ExitedCount},
		{"Total Gains (eth)", r.TotalGainsEth},
		{"Fees (eth)", fmt.Sprintf("%s (rate %s)", r.FeesEth, r.FeeRate)},
		{"Virtual Price", r.VirtualPrice},
		{"Virtual Price Post Fees", r.VirtualPricePostFees},
		{"Virtual Price for Oracle", r.OraclePrice},
		{"Virtual Price for Oracle Post Fees", r.OraclePricePostFees},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%v\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func writeLog(w io.Writer, r Summary) {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(logrus.StandardLogger().Formatter)

	logger.WithFields(logrus.Fields{
		"timestamp":               r.Timestamp.Format(time.RFC3339),
		"total_validators":        r.TotalValidators,
		"total_eth":               r.TotalEth,
		"el_reward_gwei":          r.ExecutionLayerGwei,
		"effective_balance_gwei":  r.EffectiveBalanceGwei,
		"total_withdrawals_gwei":  r.TotalWithdrawalsGwei,
		"creds_changed":           r.CredentialChangedCount,
		"label_mismatches":        r.LabelMismatchCount,
		"failed_validators":       r.ErrorCount,
		"exited_validators":       r.ExitedCount,
		"total_gains_eth":         r.TotalGainsEth,
		"virtual_price":           r.VirtualPrice,
		"virtual_price_post_fees": r.VirtualPricePostFees,
		"oracle_price":            r.OraclePrice,
	}).Info("virtual price computed")
}
