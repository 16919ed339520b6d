package clientapi

import (
	"context"
	"math/big"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/migalabs/vprice/pkg/spec"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	getBalanceMethod = "eth_getBalance"
	latestBlockTag   = "latest"
)

var weiPerGwei = big.NewInt(spec.WeiPerGwei)

// ELClient reads the balance of the execution layer reward address.
type ELClient struct {
	endpoint  string
	rpcClient *rpc.Client
}

func NewELClient(ctx context.Context, endpoint string) (*ELClient, error) {
	log.Debugf("generating execution layer client at %s", endpoint)
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, &spec.RpcError{Endpoint: endpoint, Method: "dial", Err: err}
	}
	return &ELClient{
		endpoint:  endpoint,
		rpcClient: rpcClient,
	}, nil
}

// FetchExecutionLayerBalance returns the balance of address at the latest
// block, in gwei. The wei remainder is truncated.
func (c *ELClient) FetchExecutionLayerBalance(ctx context.Context, address string) (phase0.Gwei, error) {
	rpcErr := func(err error) error {
		rewardRequests.WithLabelValues("error").Inc()
		return &spec.RpcError{Endpoint: c.endpoint, Method: getBalanceMethod, Err: err}
	}
	if !common.IsHexAddress(address) {
		return 0, rpcErr(errors.Errorf("invalid address %q", address))
	}

	start := time.Now()
	var result *hexutil.Big
	err := c.rpcClient.CallContext(ctx, &result, getBalanceMethod, common.HexToAddress(address), latestBlockTag)
	if err != nil {
		return 0, rpcErr(err)
	}
	if result == nil {
		return 0, rpcErr(errors.New("empty result"))
	}

	wei := result.ToInt()
	if wei.Sign() < 0 {
		return 0, rpcErr(errors.Errorf("negative balance %s", wei))
	}
	gwei := new(big.Int).Quo(wei, weiPerGwei)
	if !gwei.IsUint64() {
		return 0, rpcErr(errors.Errorf("balance %s gwei overflows", gwei))
	}
	rewardRequests.WithLabelValues(chunkResultOK).Inc()

	log.WithFields(logrus.Fields{
		"address": address,
		"wei":     wei.String(),
		"elapsed": time.Since(start).Seconds(),
	}).Info("execution layer reward balance downloaded")
	return phase0.Gwei(gwei.Uint64()), nil
}

func (c *ELClient) Close() {
	c.rpcClient.Close()
}
