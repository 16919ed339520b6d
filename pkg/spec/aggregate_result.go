package spec

import (
	"math/big"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/shopspring/decimal"
)

type AggregateResult struct {
	TotalValidators        int
	TotalBalance           phase0.Gwei // consensus balance plus execution layer reward
	TotalWithdrawals       phase0.Gwei
	ConsensusLayerReward   phase0.Gwei // total balance before folding the execution layer reward
	ExecutionLayerReward   phase0.Gwei // fetched reward plus RewardAdjustment
	RewardAdjustment       int64       // gwei, caller supplied correction
	EffectiveBalance       phase0.Gwei
	LabelMismatchCount     int
	ErrorCount             int
	ExitedCount            int
	CredentialChangedCount int
	TotalGains             int64 // gwei, can be negative after penalties
	FeeRate                decimal.Decimal
	Fees                   decimal.Decimal // gwei
	VirtualPrice           decimal.Decimal
	VirtualPricePostFees   decimal.Decimal

	UnhealthyValidators         []phase0.ValidatorIndex
	CredentialChangedValidators []phase0.ValidatorIndex
}

func GweiToDecimal(amount phase0.Gwei) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(amount)), 0)
}

func GweiToEth(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(-9)
}

func (f AggregateResult) TotalBalanceEth() decimal.Decimal {
	return GweiToEth(GweiToDecimal(f.TotalBalance))
}

func (f AggregateResult) TotalGainsEth() decimal.Decimal {
	return GweiToEth(decimal.NewFromInt(f.TotalGains))
}

// VirtualPriceWei returns the virtual price as an 18 decimals fixed point integer.
func (f AggregateResult) VirtualPriceWei() *big.Int {
	return toOracleUnits(f.VirtualPrice)
}

func (f AggregateResult) VirtualPricePostFeesWei() *big.Int {
	return toOracleUnits(f.VirtualPricePostFees)
}

func toOracleUnits(price decimal.Decimal) *big.Int {
	return price.Shift(OracleDecimals).Truncate(0).BigInt()
}
