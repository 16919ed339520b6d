package aggregator

import (
	"sort"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/migalabs/vprice/pkg/spec"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	log = logrus.WithField(
		"module", "aggregator",
	)

	DefaultFeeRate = decimal.RequireFromString("0.20")
)

type SummaryOpts struct {
	// ExpectedLabel is the label every validator should carry. An empty value
	// turns the label check off and LabelMismatchCount stays at zero.
	ExpectedLabel    string
	FeeRate          decimal.Decimal // share of the gains taken as fees, within [0, 1]
	RewardAdjustment int64           // gwei added to the execution layer reward, can be negative
}

func DefaultSummaryOpts() SummaryOpts {
	return SummaryOpts{
		FeeRate: DefaultFeeRate,
	}
}

// FleetAggregation accumulates validator records. Every field is a sum or
// a count, so the result does not depend on the order records are added.
type FleetAggregation struct {
	expectedLabel string

	TotalValidators        int
	TotalBalance           phase0.Gwei
	EffectiveBalance       phase0.Gwei
	TotalWithdrawals       phase0.Gwei
	LabelMismatchCount     int
	ErrorCount             int
	ExitedCount            int
	CredentialChangedCount int
	Unhealthy              []phase0.ValidatorIndex
	CredentialChanged      []phase0.ValidatorIndex
}

func NewFleetAggregation(expectedLabel string) *FleetAggregation {
	return &FleetAggregation{
		expectedLabel:     expectedLabel,
		Unhealthy:         make([]phase0.ValidatorIndex, 0),
		CredentialChanged: make([]phase0.ValidatorIndex, 0),
	}
}

func (f *FleetAggregation) Aggregate(record spec.ValidatorRecord) {
	f.TotalValidators++

	if f.expectedLabel != "" && record.Label != f.expectedLabel {
		f.LabelMismatchCount++
		log.Debugf("validator %d labelled %q", record.Index, record.Label)
	}

	switch {
	case record.Status == spec.EXITED_STATUS:
		f.ExitedCount++
	case !record.Healthy():
		f.ErrorCount++
		f.Unhealthy = append(f.Unhealthy, record.Index)
		log.WithFields(recordFields(record)).Warn("validator is not healthy")
	}

	if record.CredentialsChanged() {
		f.CredentialChangedCount++
		f.CredentialChanged = append(f.CredentialChanged, record.Index)
		log.WithFields(recordFields(record)).Warn("withdrawal credentials changed")
	}

	f.TotalBalance += record.Balance
	f.EffectiveBalance += record.EffectiveBalance
	f.TotalWithdrawals += record.TotalWithdrawals
}

func recordFields(record spec.ValidatorRecord) logrus.Fields {
	return logrus.Fields{
		"validator":   record.Index,
		"status":      record.RawStatus,
		"slashed":     record.Slashed,
		"balance":     record.Balance,
		"credentials": record.WithdrawalCredentialsPrefix,
		"label":       record.Label,
	}
}

// Summarize folds the snapshot into fleet totals and derives the virtual price
// before and after fees.
func Summarize(snapshot spec.FleetSnapshot, opts SummaryOpts) (spec.AggregateResult, error) {
	if opts.FeeRate.IsNegative() || opts.FeeRate.GreaterThan(decimal.NewFromInt(1)) {
		return spec.AggregateResult{}, errors.Wrapf(spec.ErrInvalidFeeRate, "got %s", opts.FeeRate)
	}

	agg := NewFleetAggregation(opts.ExpectedLabel)
	for _, record := range snapshot.Validators {
		agg.Aggregate(record)
	}
	return agg.Finalize(snapshot.ExecutionLayerReward, opts)
}

// Finalize folds the execution layer reward and computes the prices.
func (f *FleetAggregation) Finalize(elReward phase0.Gwei, opts SummaryOpts) (spec.AggregateResult, error) {
	adjustedReward := int64(elReward) + opts.RewardAdjustment
	if adjustedReward < 0 {
		return spec.AggregateResult{}, errors.Wrapf(spec.ErrNegativeReward, "reward %d gwei, adjustment %d gwei", elReward, opts.RewardAdjustment)
	}

	result := spec.AggregateResult{
		TotalValidators:             f.TotalValidators,
		TotalWithdrawals:            f.TotalWithdrawals,
		ConsensusLayerReward:        f.TotalBalance,
		ExecutionLayerReward:        phase0.Gwei(adjustedReward),
		RewardAdjustment:            opts.RewardAdjustment,
		EffectiveBalance:            f.EffectiveBalance,
		LabelMismatchCount:          f.LabelMismatchCount,
		ErrorCount:                  f.ErrorCount,
		ExitedCount:                 f.ExitedCount,
		CredentialChangedCount:      f.CredentialChangedCount,
		FeeRate:                     opts.FeeRate,
		UnhealthyValidators:         sortedIndexes(f.Unhealthy),
		CredentialChangedValidators: sortedIndexes(f.CredentialChanged),
	}
	result.TotalBalance = result.ConsensusLayerReward + result.ExecutionLayerReward

	if result.EffectiveBalance == 0 {
		return spec.AggregateResult{}, errors.Wrapf(spec.ErrDivisionByZero, "%d validators aggregated", result.TotalValidators)
	}

	totalBalance := spec.GweiToDecimal(result.TotalBalance)
	effectiveBalance := spec.GweiToDecimal(result.EffectiveBalance)
	gains := totalBalance.Sub(effectiveBalance)
	fees := gains.Mul(opts.FeeRate)

	result.TotalGains = gains.IntPart()
	result.Fees = fees
	result.VirtualPrice = totalBalance.DivRound(effectiveBalance, spec.OracleDecimals)
	result.VirtualPricePostFees = effectiveBalance.Add(gains).Sub(fees).DivRound(effectiveBalance, spec.OracleDecimals)

	return result, nil
}

func sortedIndexes(idxs []phase0.ValidatorIndex) []phase0.ValidatorIndex {
	sorted := make([]phase0.ValidatorIndex, len(idxs))
	copy(sorted, idxs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}
