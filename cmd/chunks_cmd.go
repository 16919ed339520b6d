package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/migalabs/vprice/pkg/utils"
	"github.com/pkg/errors"
	cli "github.com/urfave/cli/v2"
)

var ChunksCommand = &cli.Command{
	Name:   "chunks",
	Usage:  "print the request plan of an index file without touching the network",
	Action: LaunchChunkPlan,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config-file",
			Usage:   "yaml file with the price command settings",
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
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "validators per request, example: 100",
			EnvVars: []string{"VPRICE_BATCH_SIZE"},
		},
	},
}

func LaunchChunkPlan(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	if conf.BatchSize <= 0 {
		return errors.Errorf("batch-size must be positive, got %d", conf.BatchSize)
	}
	order, err := utils.ParseIndexOrder(conf.IndexOrder)
	if err != nil {
		return err
	}
	valIdxs, err := utils.ReadValidatorIndexFile(conf.IndexFile, order)
	if err != nil {
		return err
	}
	chunks := utils.ChunkIndexes(valIdxs, conf.BatchSize)

	w := c.App.Writer
	fmt.Fprintf(w, "%d validators in %d chunks of up to %d\n", len(valIdxs), len(chunks), conf.BatchSize)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "chunk\tsize\tfirst\tlast")
	for i, chunk := range chunks {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", i, len(chunk), chunk[0], chunk[len(chunk)-1])
	}
	return tw.Flush()
}
