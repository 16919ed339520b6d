package clientapi

import (
	"context"
	"sort"
	"time"

	eth2client "github.com/attestantio/go-eth2-client"
	"github.com/attestantio/go-eth2-client/api"
	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/http"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/migalabs/vprice/pkg/spec"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
)

var (
	moduleName = "API-Cli"
	log        = logrus.WithField(
		"module", moduleName)

	// go-eth2-client refuses to run without a timeout
	DefaultBeaconNodeTimeout = 2 * time.Minute
	headState                = "head"
)

// BeaconNodeClient resolves validator chunks against a standard beacon node.
// The node knows neither labels nor total withdrawals, those are left empty.
type BeaconNodeClient struct {
	Api eth2client.ValidatorsProvider
}

func NewBeaconNodeClient(ctx context.Context, cliEndpoint string, timeout time.Duration) (*BeaconNodeClient, error) {
	log.Debugf("generating http client at %s", cliEndpoint)
	if timeout <= 0 {
		timeout = DefaultBeaconNodeTimeout
	}
	httpCli, err := http.New(
		ctx,
		http.WithAddress(cliEndpoint),
		http.WithLogLevel(zerolog.WarnLevel),
		http.WithTimeout(timeout),
	)
	if err != nil {
		return &BeaconNodeClient{}, errors.Wrap(err, "unable to connect to beacon node")
	}

	provider, ok := httpCli.(eth2client.ValidatorsProvider)
	if !ok {
		return &BeaconNodeClient{}, errors.New("beacon node client does not provide validators")
	}
	return &BeaconNodeClient{
		Api: provider,
	}, nil
}

func (c *BeaconNodeClient) Name() string {
	return "beacon-node"
}

func (c *BeaconNodeClient) FetchChunk(ctx context.Context, valIdxs []phase0.ValidatorIndex) ([]spec.ValidatorRecord, error) {
	resp, err := c.Api.Validators(ctx, &api.ValidatorsOpts{
		State:   headState,
		Indices: valIdxs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to request validators")
	}
	if resp == nil || resp.Data == nil {
		return nil, errors.Wrap(ErrMalformedResponse, "empty validators response")
	}

	records := make([]spec.ValidatorRecord, 0, len(resp.Data))
	for _, item := range resp.Data {
		record, err := ValidatorRecordFromAPI(item)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	// the node answers with a map
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })
	return records, nil
}

func ValidatorRecordFromAPI(item *apiv1.Validator) (spec.ValidatorRecord, error) {
	if item == nil || item.Validator == nil {
		return spec.ValidatorRecord{}, errors.Wrap(ErrMalformedResponse, "validator without body")
	}
	if len(item.Validator.WithdrawalCredentials) == 0 {
		return spec.ValidatorRecord{}, errors.Wrapf(ErrMalformedResponse, "validator %d: empty withdrawal credentials", item.Index)
	}
	return spec.ValidatorRecord{
		Index:                       item.Index,
		Balance:                     item.Balance,
		EffectiveBalance:            item.Validator.EffectiveBalance,
		Status:                      statusFromAPI(item.Status),
		RawStatus:                   item.Status.String(),
		Slashed:                     item.Validator.Slashed,
		WithdrawalCredentialsPrefix: item.Validator.WithdrawalCredentials[0],
	}, nil
}

func statusFromAPI(state apiv1.ValidatorState) spec.ValidatorStatus {
	switch state {
	case apiv1.ValidatorStateActiveOngoing:
		return spec.ACTIVE_ONLINE_STATUS
	case apiv1.ValidatorStateExitedUnslashed,
		apiv1.ValidatorStateExitedSlashed,
		apiv1.ValidatorStateWithdrawalPossible,
		apiv1.ValidatorStateWithdrawalDone:
		return spec.EXITED_STATUS
	default:
		return spec.OTHER_STATUS
	}
}
