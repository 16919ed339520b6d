package metrics

import (
	"context"
	"strings"

	"github.com/migalabs/vprice/pkg/spec"
	"github.com/migalabs/vprice/pkg/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
)

var (
	log = logrus.WithField(
		"module", "metrics",
	)
	modName = "oracle"
)

const DefaultJobName = "vprice"

// RunPusher sends the outcome of a single oracle run to a Prometheus Pushgateway.
type RunPusher struct {
	url      string
	job      string
	registry *prometheus.Registry

	virtualPrice         prometheus.Gauge
	virtualPricePostFees prometheus.Gauge
	totalBalance         prometheus.Gauge
	effectiveBalance     prometheus.Gauge
	executionReward      prometheus.Gauge
	validators           *prometheus.GaugeVec
	phaseDuration        *prometheus.GaugeVec
	lastRun              prometheus.Gauge
}

func NewRunPusher(url, job string, collectors ...prometheus.Collector) (*RunPusher, error) {
	if url == "" {
		return nil, errors.New("pushgateway url is empty")
	}
	if job == "" {
		job = DefaultJobName
	}
	namespace := strings.ToLower(utils.CliName)
	p := &RunPusher{
		url:      url,
		job:      job,
		registry: prometheus.NewRegistry(),
		virtualPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: modName,
			Name:      "virtual_price",
			Help:      "Virtual price of the validator fleet",
		}),
		virtualPricePostFees: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: modName,
			Name:      "virtual_price_post_fees",
			Help:      "Virtual price of the validator fleet after the protocol fee",
		}),
		totalBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: modName,
			Name:      "total_balance_eth",
			Help:      "Consensus balance plus execution layer reward in ETH",
		}),
		effectiveBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: modName,
			Name:      "effective_balance_eth",
			Help:      "Sum of the effective balances in ETH",
		}),
		executionReward: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: modName,
			Name:      "execution_layer_reward_eth",
			Help:      "Execution layer reward after adjustment in ETH",
		}),
		validators: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: modName,
			Name:      "validators",
			Help:      "Validators in the last run by classification",
		}, []string{"class"}),
		phaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: modName,
			Name:      "phase_duration_ms",
			Help:      "Time spent in each phase of the last run",
		}, []string{"phase"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: modName,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
	}
	p.registry.MustRegister(
		p.virtualPrice,
		p.virtualPricePostFees,
		p.totalBalance,
		p.effectiveBalance,
		p.executionReward,
		p.validators,
		p.phaseDuration,
		p.lastRun,
	)
	for _, c := range collectors {
		if err := p.registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "unable to register collector")
		}
	}
	return p, nil
}

func (p *RunPusher) Update(result spec.AggregateResult, mon *Monitor) {
	p.virtualPrice.Set(result.VirtualPrice.InexactFloat64())
	p.virtualPricePostFees.Set(result.VirtualPricePostFees.InexactFloat64())
	p.totalBalance.Set(result.TotalBalanceEth().InexactFloat64())
	p.effectiveBalance.Set(spec.GweiToEth(spec.GweiToDecimal(result.EffectiveBalance)).InexactFloat64())
	p.executionReward.Set(spec.GweiToEth(spec.GweiToDecimal(result.ExecutionLayerReward)).InexactFloat64())

	p.validators.WithLabelValues("total").Set(float64(result.TotalValidators))
	p.validators.WithLabelValues("unhealthy").Set(float64(result.ErrorCount))
	p.validators.WithLabelValues("exited").Set(float64(result.ExitedCount))
	p.validators.WithLabelValues("credentials_changed").Set(float64(result.CredentialChangedCount))
	p.validators.WithLabelValues("label_mismatch").Set(float64(result.LabelMismatchCount))

	if mon != nil {
		for phase, ms := range mon.Snapshot() {
			p.phaseDuration.WithLabelValues(phase).Set(ms)
		}
	}
	p.lastRun.SetToCurrentTime()
}

// Push replaces the metrics grouped under the job in the gateway.
func (p *RunPusher) Push(ctx context.Context) error {
	err := push.New(p.url, p.job).Gatherer(p.registry).PushContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "unable to push metrics to %s", p.url)
	}
	log.Debugf("metrics pushed to %s (job %s)", p.url, p.job)
	return nil
}
