package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/migalabs/vprice/cmd"
	"github.com/migalabs/vprice/pkg/utils"
)

var (
	log = logrus.WithField(
		"cli", utils.CliName,
	)
)

func main() {
	// Set the general log configurations for the entire tool
	logrus.SetFormatter(utils.ParseLogFormatter("text"))
	logrus.SetOutput(utils.ParseLogOutput("stderr"))
	logrus.SetLevel(utils.ParseLogLevel("info"))

	log.Infof("%s %s", utils.CliName, utils.Version)

	// a missing .env is fine, flags and the environment still apply
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("unable to load .env: %v", err)
	}

	app := &cli.App{
		Name:                 utils.CliName,
		Usage:                "Computes the virtual price of a validator fleet from its consensus and execution layer balances.",
		UsageText:            "vprice [commands] [arguments...]",
		EnableBashCompletion: true,
		DefaultCommand:       cmd.PriceCommand.Name,
		Commands: []*cli.Command{
			cmd.PriceCommand,
			cmd.ChunksCommand,
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Errorf("error: %v\n", err)
		os.Exit(1)
	}
}
