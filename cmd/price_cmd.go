package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/migalabs/vprice/pkg/config"
	"github.com/migalabs/vprice/pkg/oracle"
	"github.com/migalabs/vprice/pkg/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
)

var PriceCommand = &cli.Command{
	Name:   "price",
	Usage:  "compute the virtual price of a validator fleet",
	Action: LaunchPriceOracle,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log level: trace, debug, info, warn, error",
			EnvVars: []string{"VPRICE_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log format: text, json",
			EnvVars: []string{"VPRICE_LOG_FORMAT"},
		},
		&cli.StringFlag{
			Name:    "config-file",
			Usage:   "yaml file with any of the flags of this command, flags take precedence",
			EnvVars: []string{"VPRICE_CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:    "index-file",
			Usage:   "file with a header line and one pubkey:index per line",
			EnvVars: []string{"VPRICE_INDEX_FILE"},
		},
		&cli.StringFlag{
			Name:    "index-order",
			Usage:   "order of the requested indexes: file or numeric",
			EnvVars: []string{"VPRICE_INDEX_ORDER"},
		},
		&cli.StringFlag{
			Name:    "source",
			Usage:   "where validators are requested from: beaconcha or beacon-node",
			EnvVars: []string{"VPRICE_SOURCE"},
		},
		&cli.StringFlag{
			Name:    "beaconcha-endpoint",
			Usage:   "example: https://beaconcha.in/api/v1",
			EnvVars: []string{"VPRICE_BEACONCHA_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "bn-endpoint",
			Usage:   "beacon node endpoint, used by the beacon-node source",
			EnvVars: []string{"VPRICE_BN_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "el-endpoint",
			Usage:   "execution node endpoint (to request the reward address balance)",
			EnvVars: []string{"VPRICE_EL_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "reward-address",
			Usage:   "address accumulating the execution layer rewards of the fleet",
			EnvVars: []string{"VPRICE_REWARD_ADDRESS"},
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "validators per request, example: 100",
			EnvVars: []string{"VPRICE_BATCH_SIZE"},
		},
		&cli.IntFlag{
			Name:    "calls-per-minute",
			Usage:   "request ceiling of the validator source, 0 disables it",
			EnvVars: []string{"VPRICE_CALLS_PER_MINUTE"},
		},
		&cli.IntFlag{
			Name:    "max-concurrent",
			Usage:   "requests in flight at the same time, example: 10",
			EnvVars: []string{"VPRICE_MAX_CONCURRENT"},
		},
		&cli.DurationFlag{
			Name:    "request-timeout",
			Usage:   "timeout of every validator request, 0 waits forever",
			EnvVars: []string{"VPRICE_REQUEST_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "expected-label",
			Usage:   "beaconcha.in label every validator should carry, empty disables the check",
			EnvVars: []string{"VPRICE_EXPECTED_LABEL"},
		},
		&cli.StringFlag{
			Name:    "fee-rate",
			Usage:   "share of the gains taken as fees, example: 0.20",
			EnvVars: []string{"VPRICE_FEE_RATE"},
		},
		&cli.Int64Flag{
			Name:    "reward-adjustment",
			Usage:   "gwei added to the execution layer reward, can be negative",
			EnvVars: []string{"VPRICE_REWARD_ADJUSTMENT"},
		},
		&cli.StringFlag{
			Name:    "report-format",
			Usage:   "example: text, json, log",
			EnvVars: []string{"VPRICE_REPORT_FORMAT"},
		},
		&cli.StringFlag{
			Name:    "pushgateway-url",
			Usage:   "prometheus pushgateway receiving the run metrics, empty disables it",
			EnvVars: []string{"VPRICE_PUSHGATEWAY_URL"},
		},
	},
}

var logCmdPrice = logrus.WithField(
	"module", "priceCommand",
)

// loadConfig composes defaults, the optional config file and the set flags.
func loadConfig(c *cli.Context) (*config.OracleConfig, error) {
	conf := config.NewOracleConfig()
	if c.IsSet("config-file") {
		if err := conf.LoadFile(c.String("config-file")); err != nil {
			return nil, err
		}
	}
	conf.Apply(c)
	logrus.SetLevel(utils.ParseLogLevel(conf.LogLevel))
	logrus.SetFormatter(utils.ParseLogFormatter(conf.LogFormat))
	return conf, nil
}

func LaunchPriceOracle(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}

	priceOracle, err := oracle.NewOracle(c.Context, conf)
	if err != nil {
		return err
	}
	defer priceOracle.Close()

	procDoneC := make(chan error, 1)
	sigtermC := make(chan os.Signal, 1)

	signal.Notify(sigtermC, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer signal.Stop(sigtermC)

	go func() {
		_, err := priceOracle.Run()
		procDoneC <- err
	}()

	select {
	case <-sigtermC:
		logCmdPrice.Info("Sudden shutdown detected, controlled shutdown of the cli triggered")
		priceOracle.Close()
		<-procDoneC
		return errors.New("run interrupted")

	case err := <-procDoneC:
		if err != nil {
			return err
		}
		logCmdPrice.Info("Process successfully finish!")
	}
	return nil
}
