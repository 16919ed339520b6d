package clientapi

import (
	"testing"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/migalabs/vprice/pkg/spec"
	"github.com/stretchr/testify/require"
)

func TestValidatorRecordFromAPI(t *testing.T) {
	creds := make([]byte, 32)
	creds[0] = 0x01

	record, err := ValidatorRecordFromAPI(&apiv1.Validator{
		Index:   42,
		Balance: 32_001_000_000,
		Status:  apiv1.ValidatorStateActiveOngoing,
		Validator: &phase0.Validator{
			EffectiveBalance:      32_000_000_000,
			Slashed:               false,
			WithdrawalCredentials: creds,
		},
	})
	require.NoError(t, err)
	require.Equal(t, phase0.ValidatorIndex(42), record.Index)
	require.Equal(t, phase0.Gwei(32_001_000_000), record.Balance)
	require.Equal(t, phase0.Gwei(32_000_000_000), record.EffectiveBalance)
	require.Equal(t, spec.ACTIVE_ONLINE_STATUS, record.Status)
	require.Equal(t, "active_ongoing", record.RawStatus)
	require.Equal(t, byte(0x01), record.WithdrawalCredentialsPrefix)
	require.Empty(t, record.Label)
	require.Zero(t, record.TotalWithdrawals)
}

func TestValidatorRecordFromAPIMalformed(t *testing.T) {
	_, err := ValidatorRecordFromAPI(nil)
	require.ErrorIs(t, err, ErrMalformedResponse)

	_, err = ValidatorRecordFromAPI(&apiv1.Validator{Index: 1})
	require.ErrorIs(t, err, ErrMalformedResponse)

	_, err = ValidatorRecordFromAPI(&apiv1.Validator{Index: 1, Validator: &phase0.Validator{}})
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestStatusFromAPI(t *testing.T) {
	require.Equal(t, spec.ACTIVE_ONLINE_STATUS, statusFromAPI(apiv1.ValidatorStateActiveOngoing))
	require.Equal(t, spec.EXITED_STATUS, statusFromAPI(apiv1.ValidatorStateExitedUnslashed))
	require.Equal(t, spec.EXITED_STATUS, statusFromAPI(apiv1.ValidatorStateExitedSlashed))
	require.Equal(t, spec.EXITED_STATUS, statusFromAPI(apiv1.ValidatorStateWithdrawalDone))
	require.Equal(t, spec.OTHER_STATUS, statusFromAPI(apiv1.ValidatorStateActiveExiting))
	require.Equal(t, spec.OTHER_STATUS, statusFromAPI(apiv1.ValidatorStatePendingQueued))
}
