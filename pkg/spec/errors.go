package spec

import (
	"fmt"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
)

var (
	ErrDivisionByZero = errors.New("effective balance is zero, virtual price is undefined")
	ErrNegativeReward = errors.New("execution layer reward is negative after adjustment")
	ErrInvalidFeeRate = errors.New("fee rate must be within [0, 1]")
)

// ParseError describes a line of the index file that could not be parsed.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d (%q): %s", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FetchError describes a chunk whose records could not be retrieved.
// The chunk contributes no records but the run continues.
type FetchError struct {
	Chunk   int
	Indices []phase0.ValidatorIndex
	Err     error
}

func (e *FetchError) Error() string {
	first, last := phase0.ValidatorIndex(0), phase0.ValidatorIndex(0)
	if len(e.Indices) > 0 {
		first, last = e.Indices[0], e.Indices[len(e.Indices)-1]
	}
	return fmt.Sprintf("chunk %d (%d validators, %d..%d): %s", e.Chunk, len(e.Indices), first, last, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RpcError is returned by the execution layer client. It is always fatal:
// the reward is a mandatory input of the price.
type RpcError struct {
	Endpoint string
	Method   string
	Err      error
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("%s request to %s failed: %s", e.Method, e.Endpoint, e.Err)
}

func (e *RpcError) Unwrap() error { return e.Err }
