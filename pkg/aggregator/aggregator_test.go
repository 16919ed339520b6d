package aggregator

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/migalabs/vprice/pkg/spec"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const label = "@ChimeraDefi"

func healthyRecord(idx phase0.ValidatorIndex, balance phase0.Gwei) spec.ValidatorRecord {
	return spec.ValidatorRecord{
		Index:            idx,
		Balance:          balance,
		EffectiveBalance: 32_000_000_000,
		Status:           spec.ACTIVE_ONLINE_STATUS,
		RawStatus:        "active_online",
		Label:            label,
	}
}

func TestSummarizeSingleValidator(t *testing.T) {
	snapshot := spec.NewFleetSnapshot([]spec.ValidatorRecord{healthyRecord(1, 32_000_000_000)}, 0)

	result, err := Summarize(snapshot, SummaryOpts{ExpectedLabel: label, FeeRate: DefaultFeeRate})
	require.NoError(t, err)

	require.Equal(t, 1, result.TotalValidators)
	require.Equal(t, phase0.Gwei(32_000_000_000), result.TotalBalance)
	require.Equal(t, int64(0), result.TotalGains)
	require.True(t, result.VirtualPrice.Equal(decimal.NewFromInt(1)), result.VirtualPrice.String())
	require.True(t, result.VirtualPricePostFees.Equal(decimal.NewFromInt(1)), result.VirtualPricePostFees.String())
	require.Zero(t, result.ErrorCount)
	require.Zero(t, result.LabelMismatchCount)
	require.Equal(t, big.NewInt(1_000_000_000_000_000_000).String(), result.VirtualPriceWei().String())
}

func TestSummarizeSlashedValidator(t *testing.T) {
	slashed := healthyRecord(2, 31_000_000_000)
	slashed.Slashed = true
	snapshot := spec.NewFleetSnapshot([]spec.ValidatorRecord{healthyRecord(1, 32_500_000_000), slashed}, 0)

	result, err := Summarize(snapshot, DefaultSummaryOpts())
	require.NoError(t, err)

	require.Equal(t, 1, result.ErrorCount)
	require.Equal(t, 0, result.ExitedCount)
	require.Equal(t, []phase0.ValidatorIndex{2}, result.UnhealthyValidators)
	require.Equal(t, phase0.Gwei(63_500_000_000), result.TotalBalance)
	require.Equal(t, phase0.Gwei(64_000_000_000), result.EffectiveBalance)
}

func TestSummarizeClassification(t *testing.T) {
	exited := healthyRecord(3, 0)
	exited.Status = spec.EXITED_STATUS
	exited.Slashed = true // exited validators are not counted as errors
	offline := healthyRecord(4, 32_000_000_000)
	offline.Status = spec.OTHER_STATUS
	offline.RawStatus = "active_offline"
	renamed := healthyRecord(5, 32_000_000_000)
	renamed.Label = "someone else"
	moved := healthyRecord(6, 32_000_000_000)
	moved.WithdrawalCredentialsPrefix = 0x01
	moved.TotalWithdrawals = 2_000_000_000

	snapshot := spec.NewFleetSnapshot([]spec.ValidatorRecord{exited, offline, renamed, moved}, 0)
	result, err := Summarize(snapshot, SummaryOpts{ExpectedLabel: label})
	require.NoError(t, err)

	require.Equal(t, 1, result.ExitedCount)
	require.Equal(t, 1, result.ErrorCount)
	require.Equal(t, []phase0.ValidatorIndex{4}, result.UnhealthyValidators)
	require.Equal(t, 1, result.LabelMismatchCount)
	require.Equal(t, 1, result.CredentialChangedCount)
	require.Equal(t, []phase0.ValidatorIndex{6}, result.CredentialChangedValidators)
	require.Equal(t, phase0.Gwei(2_000_000_000), result.TotalWithdrawals)

	// no expected label, no mismatch
	result, err = Summarize(snapshot, SummaryOpts{})
	require.NoError(t, err)
	require.Zero(t, result.LabelMismatchCount)
}

func TestSummarizeRewardFolding(t *testing.T) {
	records := []spec.ValidatorRecord{
		healthyRecord(1, 32_100_000_000),
		healthyRecord(2, 32_300_000_000),
	}
	snapshot := spec.NewFleetSnapshot(records, 400_000_000)

	result, err := Summarize(snapshot, SummaryOpts{FeeRate: DefaultFeeRate})
	require.NoError(t, err)

	require.Equal(t, phase0.Gwei(64_400_000_000), result.ConsensusLayerReward)
	require.Equal(t, phase0.Gwei(400_000_000), result.ExecutionLayerReward)
	require.Equal(t, result.ConsensusLayerReward+result.ExecutionLayerReward, result.TotalBalance)
	require.Equal(t, int64(800_000_000), result.TotalGains)

	// 64.8 / 64 = 1.0125, after 20% fees 1.01
	require.True(t, result.VirtualPrice.Equal(decimal.RequireFromString("1.0125")), result.VirtualPrice.String())
	require.True(t, result.Fees.Equal(decimal.NewFromInt(160_000_000)), result.Fees.String())
	require.True(t, result.VirtualPricePostFees.Equal(decimal.RequireFromString("1.01")), result.VirtualPricePostFees.String())
	require.Equal(t, "1012500000000000000", result.VirtualPriceWei().String())
	require.Equal(t, "1010000000000000000", result.VirtualPricePostFeesWei().String())
}

func TestSummarizeRewardAdjustment(t *testing.T) {
	snapshot := spec.NewFleetSnapshot([]spec.ValidatorRecord{healthyRecord(1, 32_000_000_000)}, 1_000_000_000)

	result, err := Summarize(snapshot, SummaryOpts{RewardAdjustment: 140_000_000_000})
	require.NoError(t, err)
	require.Equal(t, phase0.Gwei(141_000_000_000), result.ExecutionLayerReward)
	require.Equal(t, int64(140_000_000_000), result.RewardAdjustment)
	require.Equal(t, phase0.Gwei(173_000_000_000), result.TotalBalance)

	_, err = Summarize(snapshot, SummaryOpts{RewardAdjustment: -2_000_000_000})
	require.ErrorIs(t, err, spec.ErrNegativeReward)
}

func TestSummarizeZeroEffectiveBalance(t *testing.T) {
	_, err := Summarize(spec.NewFleetSnapshot(nil, 1_000_000_000), DefaultSummaryOpts())
	require.ErrorIs(t, err, spec.ErrDivisionByZero)

	record := healthyRecord(1, 0)
	record.EffectiveBalance = 0
	_, err = Summarize(spec.NewFleetSnapshot([]spec.ValidatorRecord{record}, 0), DefaultSummaryOpts())
	require.ErrorIs(t, err, spec.ErrDivisionByZero)
}

func TestSummarizeInvalidFeeRate(t *testing.T) {
	snapshot := spec.NewFleetSnapshot([]spec.ValidatorRecord{healthyRecord(1, 32_000_000_000)}, 0)

	_, err := Summarize(snapshot, SummaryOpts{FeeRate: decimal.RequireFromString("-0.1")})
	require.ErrorIs(t, err, spec.ErrInvalidFeeRate)
	_, err = Summarize(snapshot, SummaryOpts{FeeRate: decimal.RequireFromString("1.5")})
	require.ErrorIs(t, err, spec.ErrInvalidFeeRate)
}

func TestSummarizeZeroFeeRate(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		records := randomRecords(rnd, 1+rnd.Intn(40))
		snapshot := spec.NewFleetSnapshot(records, phase0.Gwei(rnd.Int63n(500_000_000_000)))

		result, err := Summarize(snapshot, SummaryOpts{FeeRate: decimal.Zero})
		require.NoError(t, err)
		require.True(t, result.VirtualPrice.Equal(result.VirtualPricePostFees),
			"%s != %s", result.VirtualPrice, result.VirtualPricePostFees)
	}
}

func TestSummarizePermutationInvariant(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	records := randomRecords(rnd, 300)
	opts := SummaryOpts{ExpectedLabel: label, FeeRate: DefaultFeeRate, RewardAdjustment: 5_000_000}

	expected, err := Summarize(spec.NewFleetSnapshot(records, 12_345_678_901), opts)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		shuffled := make([]spec.ValidatorRecord, len(records))
		copy(shuffled, records)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		result, err := Summarize(spec.NewFleetSnapshot(shuffled, 12_345_678_901), opts)
		require.NoError(t, err)
		requireSameResult(t, expected, result)
	}
}

func requireSameResult(t *testing.T, expected, got spec.AggregateResult) {
	t.Helper()
	require.True(t, expected.VirtualPrice.Equal(got.VirtualPrice))
	require.True(t, expected.VirtualPricePostFees.Equal(got.VirtualPricePostFees))
	require.True(t, expected.Fees.Equal(got.Fees))
	require.True(t, expected.FeeRate.Equal(got.FeeRate))

	for _, r := range []*spec.AggregateResult{&expected, &got} {
		r.VirtualPrice = decimal.Zero
		r.VirtualPricePostFees = decimal.Zero
		r.Fees = decimal.Zero
		r.FeeRate = decimal.Zero
	}
	require.Equal(t, expected, got)
}

func TestFleetSnapshotCopiesRecords(t *testing.T) {
	records := []spec.ValidatorRecord{healthyRecord(1, 32_000_000_000)}
	snapshot := spec.NewFleetSnapshot(records, 0)
	records[0].Balance = 0
	require.Equal(t, phase0.Gwei(32_000_000_000), snapshot.Validators[0].Balance)
}

func randomRecords(rnd *rand.Rand, n int) []spec.ValidatorRecord {
	statuses := []spec.ValidatorStatus{spec.ACTIVE_ONLINE_STATUS, spec.ACTIVE_ONLINE_STATUS, spec.EXITED_STATUS, spec.OTHER_STATUS}
	labels := []string{label, label, label, "other"}
	records := make([]spec.ValidatorRecord, n)
	for i := range records {
		records[i] = spec.ValidatorRecord{
			Index:                       phase0.ValidatorIndex(100_000 + i),
			Balance:                     phase0.Gwei(31_000_000_000 + rnd.Int63n(2_000_000_000)),
			EffectiveBalance:            phase0.Gwei(31_000_000_000 + rnd.Int63n(2)*1_000_000_000),
			Status:                      statuses[rnd.Intn(len(statuses))],
			Slashed:                     rnd.Intn(10) == 0,
			WithdrawalCredentialsPrefix: byte(rnd.Intn(2)),
			TotalWithdrawals:            phase0.Gwei(rnd.Int63n(1_000_000_000)),
			Label:                       labels[rnd.Intn(len(labels))],
		}
	}
	return records
}
