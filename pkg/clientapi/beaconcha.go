package clientapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/migalabs/vprice/pkg/spec"
	"github.com/pkg/errors"
)

const (
	beaconchaStatusOK = "OK"
	// max bytes of a failed response body kept in the error
	maxErrorBodyLen = 256
)

var ErrMalformedResponse = errors.New("malformed validator response")

// HTTPStatusError is returned when the query service answers with a non 200 code.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

type beaconchaResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type beaconchaValidator struct {
	ValidatorIndex        uint64 `json:"validatorindex"`
	Balance               uint64 `json:"balance"`
	EffectiveBalance      uint64 `json:"effectivebalance"`
	Status                string `json:"status"`
	Slashed               bool   `json:"slashed"`
	WithdrawalCredentials string `json:"withdrawalcredentials"`
	TotalWithdrawals      uint64 `json:"total_withdrawals"`
	Name                  string `json:"name"`
}

// BeaconchaClient requests validator state from a beaconcha.in compatible API:
// GET <endpoint>/validator/<idx>,<idx>,...
type BeaconchaClient struct {
	endpoint string
	httpCli  *http.Client
}

// A zero timeout means requests are never interrupted by the client.
func NewBeaconchaClient(endpoint string, timeout time.Duration) *BeaconchaClient {
	log.Debugf("generating beaconcha client at %s", endpoint)
	return &BeaconchaClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpCli:  &http.Client{Timeout: timeout},
	}
}

func (c *BeaconchaClient) Name() string {
	return "beaconcha"
}

func (c *BeaconchaClient) FetchChunk(ctx context.Context, valIdxs []phase0.ValidatorIndex) ([]spec.ValidatorRecord, error) {
	url := c.validatorURL(valIdxs)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBodyLen)}
	}

	return ParseBeaconchaValidators(body, valIdxs)
}

func (c *BeaconchaClient) validatorURL(valIdxs []phase0.ValidatorIndex) string {
	idxs := make([]string, len(valIdxs))
	for i, idx := range valIdxs {
		idxs[i] = fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf("%s/validator/%s", c.endpoint, strings.Join(idxs, ","))
}

// ParseBeaconchaValidators decodes a /validator response. The API returns an
// object instead of a list when a single validator is requested.
// Records of validators that were not requested are dropped.
func ParseBeaconchaValidators(body []byte, requested []phase0.ValidatorIndex) ([]spec.ValidatorRecord, error) {
	var resp beaconchaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(ErrMalformedResponse, "%s: %s", err, truncate(string(body), maxErrorBodyLen))
	}
	if resp.Status != beaconchaStatusOK {
		return nil, errors.Wrapf(ErrMalformedResponse, "api status %q", truncate(resp.Status, maxErrorBodyLen))
	}

	data := bytes.TrimSpace(resp.Data)
	var validators []beaconchaValidator
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil, errors.Wrap(ErrMalformedResponse, "missing data field")
	case data[0] == '{':
		var single beaconchaValidator
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, errors.Wrap(ErrMalformedResponse, err.Error())
		}
		validators = append(validators, single)
	default:
		if err := json.Unmarshal(data, &validators); err != nil {
			return nil, errors.Wrap(ErrMalformedResponse, err.Error())
		}
	}

	wanted := make(map[phase0.ValidatorIndex]struct{}, len(requested))
	for _, idx := range requested {
		wanted[idx] = struct{}{}
	}

	records := make([]spec.ValidatorRecord, 0, len(validators))
	for _, item := range validators {
		idx := phase0.ValidatorIndex(item.ValidatorIndex)
		if _, ok := wanted[idx]; !ok {
			log.Warnf("dropping validator %d, it was not requested", idx)
			continue
		}
		record, err := item.toRecord()
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedResponse, "validator %d: %s", idx, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (v beaconchaValidator) toRecord() (spec.ValidatorRecord, error) {
	creds, err := hexutil.Decode(v.WithdrawalCredentials)
	if err != nil {
		return spec.ValidatorRecord{}, errors.Wrap(err, "invalid withdrawal credentials")
	}
	if len(creds) == 0 {
		return spec.ValidatorRecord{}, errors.New("empty withdrawal credentials")
	}
	return spec.ValidatorRecord{
		Index:                       phase0.ValidatorIndex(v.ValidatorIndex),
		Balance:                     phase0.Gwei(v.Balance),
		EffectiveBalance:            phase0.Gwei(v.EffectiveBalance),
		Status:                      spec.ParseValidatorStatus(v.Status),
		RawStatus:                   v.Status,
		Slashed:                     v.Slashed,
		WithdrawalCredentialsPrefix: creds[0],
		TotalWithdrawals:            phase0.Gwei(v.TotalWithdrawals),
		Label:                       v.Name,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
