package utils

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/migalabs/vprice/pkg/spec"
	"github.com/pkg/errors"
)

type IndexOrder string

const (
	FileOrder    IndexOrder = "file"    // as listed in the file
	NumericOrder IndexOrder = "numeric" // ascending validator index
)

func ParseIndexOrder(order string) (IndexOrder, error) {
	switch IndexOrder(order) {
	case FileOrder, NumericOrder:
		return IndexOrder(order), nil
	default:
		return "", errors.Errorf("unknown index order %q, expected file or numeric", order)
	}
}

// ReadValidatorIndexFile reads the output of
// `validator accounts list --list-validator-indices`: a header line followed by
// "<label>: <index>" lines.
func ReadValidatorIndexFile(filePath string, order IndexOrder) ([]phase0.ValidatorIndex, error) {
	log.Info("Reading validator indexes from: ", filePath)

	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open validator index file")
	}
	defer file.Close()

	valIdxs, err := ParseValidatorIndexes(file, order)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", filePath)
	}

	log.Infof("Read %d validators from %s", len(valIdxs), filePath)
	return valIdxs, nil
}

func ParseValidatorIndexes(r io.Reader, order IndexOrder) ([]phase0.ValidatorIndex, error) {
	valIdxs := make([]phase0.ValidatorIndex, 0)
	seen := make(map[phase0.ValidatorIndex]struct{})

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip header
		if lineNum == 1 || line == "" {
			continue
		}

		valIdx, err := parseIndexLine(line)
		if err != nil {
			log.Debug((&spec.ParseError{Line: lineNum, Text: line, Err: err}).Error())
			continue
		}
		if _, ok := seen[valIdx]; ok {
			log.Debugf("validator %d listed twice, line %d ignored", valIdx, lineNum)
			continue
		}
		seen[valIdx] = struct{}{}
		valIdxs = append(valIdxs, valIdx)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if order == NumericOrder {
		sort.Slice(valIdxs, func(i, j int) bool { return valIdxs[i] < valIdxs[j] })
	}
	return valIdxs, nil
}

func parseIndexLine(line string) (phase0.ValidatorIndex, error) {
	_, value, found := strings.Cut(line, ":")
	if !found {
		return 0, errors.New("missing ':' separator")
	}
	idx, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "invalid validator index")
	}
	return phase0.ValidatorIndex(idx), nil
}
