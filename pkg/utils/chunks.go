package utils

import (
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// ChunkIndexes splits the input into contiguous batches of at most size elements.
// The last batch holds the remainder. Batches share the backing array of input.
func ChunkIndexes(input []phase0.ValidatorIndex, size int) [][]phase0.ValidatorIndex {
	if size <= 0 {
		return nil
	}
	result := make([][]phase0.ValidatorIndex, 0, (len(input)+size-1)/size)

	includedIndex := 0
	for includedIndex < len(input) {
		endIndex := includedIndex + size
		if endIndex > len(input) { // to not overflow
			endIndex = len(input)
		}
		result = append(result, input[includedIndex:endIndex:endIndex])
		includedIndex = endIndex
	}
	return result
}
