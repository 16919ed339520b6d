package spec

import (
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

type ValidatorRecord struct {
	Index                       phase0.ValidatorIndex
	Balance                     phase0.Gwei
	EffectiveBalance            phase0.Gwei
	Status                      ValidatorStatus
	RawStatus                   string // status as reported by the source, kept for logs
	Slashed                     bool
	WithdrawalCredentialsPrefix byte
	TotalWithdrawals            phase0.Gwei
	Label                       string
}

// Healthy reports whether the validator is online and not slashed.
// Exited validators are accounted separately and are never healthy.
func (f ValidatorRecord) Healthy() bool {
	return f.Status == ACTIVE_ONLINE_STATUS && !f.Slashed
}

func (f ValidatorRecord) CredentialsChanged() bool {
	return f.WithdrawalCredentialsPrefix != 0x00
}

// FleetSnapshot is the input of a single aggregation run.
type FleetSnapshot struct {
	Validators           []ValidatorRecord
	ExecutionLayerReward phase0.Gwei
}

func NewFleetSnapshot(validators []ValidatorRecord, elReward phase0.Gwei) FleetSnapshot {
	records := make([]ValidatorRecord, len(validators))
	copy(records, validators)
	return FleetSnapshot{
		Validators:           records,
		ExecutionLayerReward: elReward,
	}
}
