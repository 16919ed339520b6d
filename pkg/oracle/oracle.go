package oracle

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/migalabs/vprice/pkg/aggregator"
	"github.com/migalabs/vprice/pkg/clientapi"
	"github.com/migalabs/vprice/pkg/config"
	"github.com/migalabs/vprice/pkg/metrics"
	"github.com/migalabs/vprice/pkg/reporter"
	"github.com/migalabs/vprice/pkg/spec"
	"github.com/migalabs/vprice/pkg/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	log = logrus.WithField(
		"module", "oracle",
	)
)

type OracleOption func(*Oracle) error

// WithOutput sets where the report is written, os.Stdout by default.
func WithOutput(w io.Writer) OracleOption {
	return func(o *Oracle) error {
		o.out = w
		return nil
	}
}

func WithChunkSource(source clientapi.ChunkSource) OracleOption {
	return func(o *Oracle) error {
		o.source = source
		return nil
	}
}

type Oracle struct {
	ctx    context.Context
	cancel context.CancelFunc

	indexes       []phase0.ValidatorIndex
	batchSize     int
	rewardAddress string
	summaryOpts   aggregator.SummaryOpts
	reportFormat  reporter.Format
	out           io.Writer

	// Connections
	source  clientapi.ChunkSource
	fetcher *clientapi.BatchFetcher
	elCli   *clientapi.ELClient
	pusher  *metrics.RunPusher // nil when no pushgateway is configured

	monitor *metrics.Monitor
}

func NewOracle(pCtx context.Context, iConfig *config.OracleConfig, opts ...OracleOption) (*Oracle, error) {
	if err := iConfig.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	order, err := utils.ParseIndexOrder(iConfig.IndexOrder)
	if err != nil {
		return nil, err
	}
	format, err := reporter.ParseFormat(iConfig.ReportFormat)
	if err != nil {
		return nil, err
	}
	feeRate, err := iConfig.FeeRateDecimal()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(pCtx)
	o := &Oracle{
		ctx:           ctx,
		cancel:        cancel,
		batchSize:     iConfig.BatchSize,
		rewardAddress: iConfig.RewardAddress,
		summaryOpts: aggregator.SummaryOpts{
			ExpectedLabel:    iConfig.ExpectedLabel,
			FeeRate:          feeRate,
			RewardAdjustment: iConfig.RewardAdjustment,
		},
		reportFormat: format,
		out:          os.Stdout,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			cancel()
			return nil, errors.Wrap(err, "unable to apply oracle option")
		}
	}

	o.indexes, err = utils.ReadValidatorIndexFile(iConfig.IndexFile, order)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "unable to read validator indexes")
	}
	if len(o.indexes) == 0 {
		cancel()
		return nil, errors.Errorf("no validator indexes found in %s", iConfig.IndexFile)
	}
	o.monitor = metrics.NewMonitorMetrics(len(o.indexes))

	if o.source == nil {
		o.source, err = newChunkSource(ctx, iConfig)
		if err != nil {
			cancel()
			return nil, err
		}
	}
	if iConfig.Source == config.SourceBeaconNode && o.summaryOpts.ExpectedLabel != "" {
		log.Warnf("%s does not expose validator labels, ignoring expected label %q", o.source.Name(), o.summaryOpts.ExpectedLabel)
		o.summaryOpts.ExpectedLabel = ""
	}
	o.fetcher = clientapi.NewBatchFetcher(o.source, clientapi.FetcherOpts{
		MaxConcurrent:  iConfig.MaxConcurrent,
		CallsPerMinute: iConfig.CallsPerMinute,
	})

	o.elCli, err = clientapi.NewELClient(ctx, iConfig.ElEndpoint)
	if err != nil {
		cancel()
		return nil, err
	}

	if iConfig.PushgatewayUrl != "" {
		o.pusher, err = metrics.NewRunPusher(iConfig.PushgatewayUrl, metrics.DefaultJobName, clientapi.Collectors()...)
		if err != nil {
			o.Close()
			return nil, errors.Wrap(err, "unable to set up the metrics push")
		}
	}
	return o, nil
}

func newChunkSource(ctx context.Context, iConfig *config.OracleConfig) (clientapi.ChunkSource, error) {
	switch iConfig.Source {
	case config.SourceBeaconcha:
		return clientapi.NewBeaconchaClient(iConfig.BeaconchaEndpoint, iConfig.RequestTimeout), nil
	case config.SourceBeaconNode:
		timeout := iConfig.RequestTimeout
		if timeout == 0 {
			timeout = clientapi.DefaultBeaconNodeTimeout
		}
		source, err := clientapi.NewBeaconNodeClient(ctx, iConfig.BnEndpoint, timeout)
		if err != nil {
			return nil, errors.Wrap(err, "unable to generate beacon node client")
		}
		return source, nil
	default:
		return nil, errors.Errorf("unknown source %q", iConfig.Source)
	}
}

// Run fetches the fleet and the execution layer reward concurrently, computes
// the virtual price and writes the report. Any reward error aborts the run
// before the aggregation.
func (o *Oracle) Run() (spec.AggregateResult, error) {
	initTime := time.Now()
	var (
		fetched  *clientapi.FetchResult
		elReward phase0.Gwei
	)

	g, gCtx := errgroup.WithContext(o.ctx)
	g.Go(func() error {
		start := time.Now()
		defer func() { o.monitor.AddFetch(utils.DurationToFloat64Millis(time.Since(start))) }()

		var err error
		fetched, err = o.fetcher.Fetch(gCtx, o.indexes, o.batchSize)
		return err
	})
	g.Go(func() error {
		start := time.Now()
		defer func() { o.monitor.AddReward(utils.DurationToFloat64Millis(time.Since(start))) }()

		var err error
		elReward, err = o.elCli.FetchExecutionLayerBalance(gCtx, o.rewardAddress)
		return err
	})
	if err := g.Wait(); err != nil {
		return spec.AggregateResult{}, err
	}

	start := time.Now()
	snapshot := spec.NewFleetSnapshot(fetched.Records, elReward)
	result, err := aggregator.Summarize(snapshot, o.summaryOpts)
	o.monitor.AddAggregate(utils.DurationToFloat64Millis(time.Since(start)))
	if err != nil {
		return spec.AggregateResult{}, errors.Wrap(err, "unable to compute the virtual price")
	}

	start = time.Now()
	if err := reporter.Report(o.out, result, time.Now(), o.reportFormat); err != nil {
		return result, errors.Wrap(err, "unable to write the report")
	}
	o.monitor.AddReport(utils.DurationToFloat64Millis(time.Since(start)))

	if len(fetched.Failures) > 0 {
		log.Warnf("price computed without %d validators from %d failed chunks", len(fetched.FailedIndexes()), len(fetched.Failures))
	}
	o.pushMetrics(result)

	log.WithFields(logrus.Fields{
		"validators": len(fetched.Records),
		"chunks":     fetched.Chunks,
		"failed":     len(fetched.Failures),
		"duration":   time.Since(initTime).String(),
	}).Info("oracle run completed")
	return result, nil
}

func (o *Oracle) pushMetrics(result spec.AggregateResult) {
	if o.pusher == nil {
		return
	}
	o.pusher.Update(result, o.monitor)
	if err := o.pusher.Push(o.ctx); err != nil {
		log.Warnf("metrics not pushed: %s", err)
	}
}

func (o *Oracle) Close() {
	log.Info("closing oracle connections")
	if o.elCli != nil {
		o.elCli.Close()
	}
	o.cancel()
}
