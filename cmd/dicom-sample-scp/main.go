// Command dicom-sample-scp is a minimal storage SCP: it accepts
// associations, answers C-ECHO, and records each received instance as a
// small marker file under --storage-dir, one file per SOP Instance UID
// holding its SOP class and instance UIDs; the instance data itself is
// not written.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/meridianlabs/dicomnet/assoc"
	"github.com/meridianlabs/dicomnet/dataset"
	"github.com/meridianlabs/dicomnet/dimse"
	"github.com/meridianlabs/dicomnet/server"
	"github.com/meridianlabs/dicomnet/services"
	"github.com/meridianlabs/dicomnet/syntax"
)

func main() {
	app := &cli.App{
		Name:  "dicom-sample-scp",
		Usage: "run a sample DICOM storage SCP backed by the local filesystem",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ae-title", Value: "DICOMNET_SCP", Usage: "our AE title"},
			&cli.StringFlag{Name: "address", Value: ":11112", Usage: "address to listen on"},
			&cli.StringFlag{Name: "storage-dir", Value: "./received", Usage: "directory to write per-instance marker files to"},
			&cli.DurationFlag{Name: "artim-timeout", Value: 30 * time.Second},
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

	storageDir := c.String("storage-dir")
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	registry := services.NewRegistry(logger)
	registry.RegisterHandler(dimse.CEchoRQ, services.NewEchoHandler())
	registry.RegisterHandler(dimse.CStoreRQ, services.NewStoreHandler(&fileStore{dir: storageDir}, logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("shutting down")
		cancel()
	}()

	supported := []assoc.SupportedContext{
		{AbstractSyntax: syntax.VerificationSOPClass, TransferSyntaxes: syntax.DefaultTransferSyntaxes()},
		{AbstractSyntax: syntax.CTImageStorage, TransferSyntaxes: syntax.DefaultTransferSyntaxes()},
		{AbstractSyntax: syntax.MultiFrameGrayscaleByteSecondaryCaptureImageStorage, TransferSyntaxes: syntax.DefaultTransferSyntaxes()},
		{AbstractSyntax: syntax.EncapsulatedPDFStorage, TransferSyntaxes: syntax.DefaultTransferSyntaxes()},
	}

	return server.ListenAndServe(ctx, c.String("address"), c.String("ae-title"), registry,
		server.WithLogger(logger),
		server.WithAssocConfig(assoc.SCPConfig{
			SupportedContexts: supported,
			ArtimTimeout:      c.Duration("artim-timeout"),
			DimseTimeout:      c.Duration("dimse-timeout"),
		}),
	)
}

// fileStore implements services.Store by recording one marker file per
// received instance, named after its SOP Instance UID. It only needs the
// identifying command-set tags, already decoded into payload by whatever
// Codec the caller wired in; writing the full encoded pixel data back out
// would need that same production codec (see dataset.Codec) to
// re-serialize it, which this sample intentionally does not depend on.
type fileStore struct {
	dir string
}

func (s *fileStore) Put(ctx context.Context, sopClassUID, sopInstanceUID string, payload dataset.Dataset) error {
	path := filepath.Join(s.dir, sopInstanceUID+".dcm")
	return os.WriteFile(path, []byte(fmt.Sprintf("sop_class_uid=%s\nsop_instance_uid=%s\n", sopClassUID, sopInstanceUID)), 0o644)
}
