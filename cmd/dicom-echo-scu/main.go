// Command dicom-echo-scu sends a single C-ECHO-RQ to a peer AE and
// reports its response status, for verifying connectivity.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/meridianlabs/dicomnet/client"
)

func main() {
	app := &cli.App{
		Name:  "dicom-echo-scu",
		Usage: "verify connectivity with a DICOM peer via C-ECHO",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "calling-aet", Value: "DICOMNET_SCU", Usage: "our AE title"},
			&cli.StringFlag{Name: "called-aet", Required: true, Usage: "peer AE title"},
			&cli.StringFlag{Name: "address", Required: true, Usage: "host:port of the peer"},
			&cli.DurationFlag{Name: "connect-timeout", Value: 10 * time.Second},
			&cli.DurationFlag{Name: "dimse-timeout", Value: 30 * time.Second},
			&cli.BoolFlag{Name: "verbose"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level := zerolog.InfoLevel
	if c.Bool("verbose") {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	cl := client.New(client.Config{
		CallingAET:     c.String("calling-aet"),
		CalledAET:      c.String("called-aet"),
		Address:        c.String("address"),
		ConnectTimeout: c.Duration("connect-timeout"),
		DimseTimeout:   c.Duration("dimse-timeout"),
		Logger:         logger,
	})

	status, err := cl.Echo()
	if err != nil {
		return fmt.Errorf("echo failed: %w", err)
	}
	if status != 0 {
		return fmt.Errorf("echo returned non-success status 0x%04x", status)
	}
	logger.Info().Str("called_aet", c.String("called-aet")).Msg("echo succeeded")
	return nil
}
