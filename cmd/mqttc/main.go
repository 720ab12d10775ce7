// Command mqttc publishes and subscribes through an MQTT 3.1/3.1.1 broker.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var Flags = []cli.Flag{
	FlagLogLevel,
	FlagLogWriter,
	FlagConfig,
	FlagBroker,
	FlagClientID,
	FlagUsername,
	FlagPassword,
	FlagKeepAlive,
	FlagMetricsAddr,
}

// newApp builds the command line application. Messages go to out, logs to errOut.
func newApp(out, errOut io.Writer) *cli.App {
	var logger zerolog.Logger

	return &cli.App{
		Name:      "mqttc",
		Usage:     "MQTT 3.1.1 command line client",
		Version:   "v0.1.0",
		Flags:     Flags,
		Writer:    out,
		ErrWriter: errOut,
		Before: func(ctx *cli.Context) error {
			var logWriter io.Writer
			switch ctx.String(FlagLogWriter.Name) {
			case "console":
				logWriter = zerolog.ConsoleWriter{
					Out:        errOut,
					TimeFormat: time.RFC3339Nano,
				}
			case "json":
				logWriter = errOut
			default:
				return fmt.Errorf("invalid log writer %q", ctx.String(FlagLogWriter.Name))
			}

			level, err := zerolog.ParseLevel(ctx.String(FlagLogLevel.Name))
			if err != nil {
				return err
			}

			logger = zerolog.New(logWriter).Level(level).With().Timestamp().
				Str("service", "mqttc").
				Logger()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "pub",
				Usage: "publish a message",
				Flags: []cli.Flag{FlagTopic, FlagQoS, FlagMessage, FlagRetain, FlagCount, FlagInterval},
				Action: func(ctx *cli.Context) error {
					return runPublish(ctx, logger)
				},
			},
			{
				Name:  "sub",
				Usage: "subscribe and print messages",
				Flags: []cli.Flag{FlagTopics, FlagQoS, FlagLimit, FlagVerbose},
				Action: func(ctx *cli.Context) error {
					return runSubscribe(ctx, logger)
				},
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mqttc:", err)
		os.Exit(1)
	}
}
