package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vitalvas/mqtt311"
)

// session is a connected client plus the optional metrics server.
type session struct {
	client  *mqtt311.Client
	metrics *http.Server
	logger  zerolog.Logger
}

// clientOptions merges the config file, if any, with the global flags.
// Flags given on the command line win.
func clientOptions(ctx *cli.Context, logger zerolog.Logger) (string, []mqtt311.Option, error) {
	var (
		broker string
		opts   []mqtt311.Option
	)

	if path := ctx.Path(FlagConfig.Name); path != "" {
		cfg, err := mqtt311.LoadConfig(path)
		if err != nil {
			return "", nil, err
		}
		logger.Debug().Str("config", cfg.String()).Msg("loaded config")

		broker = cfg.Broker
		if opts, err = cfg.Options(); err != nil {
			return "", nil, err
		}
	}

	if ctx.IsSet(FlagBroker.Name) || broker == "" {
		broker = ctx.String(FlagBroker.Name)
	}
	if broker == "" {
		return "", nil, errors.New("broker address is required (--broker or config)")
	}

	if ctx.IsSet(FlagClientID.Name) {
		opts = append(opts, mqtt311.WithClientID(ctx.String(FlagClientID.Name)))
	}
	if ctx.IsSet(FlagUsername.Name) {
		opts = append(opts, mqtt311.WithCredentials(ctx.String(FlagUsername.Name), ctx.String(FlagPassword.Name)))
	}
	if ctx.IsSet(FlagKeepAlive.Name) || ctx.Path(FlagConfig.Name) == "" {
		keepAlive := ctx.Uint(FlagKeepAlive.Name)
		if keepAlive > 65535 {
			return "", nil, fmt.Errorf("keep-alive %d out of range", keepAlive)
		}
		opts = append(opts, mqtt311.WithKeepAlive(uint16(keepAlive)))
	}

	opts = append(opts,
		mqtt311.WithLogger(mqtt311.NewZerologLogger(logger.With().Str("module", "client").Logger())),
		mqtt311.OnEvent(func(_ *mqtt311.Client, event error) {
			logger.Debug().Err(event).Msg("client event")
		}),
	)
	return broker, opts, nil
}

func parseQoS(ctx *cli.Context) (mqtt311.QoS, error) {
	v := ctx.Uint(FlagQoS.Name)
	if v > 2 {
		return 0, fmt.Errorf("%w: %d", mqtt311.ErrInvalidQoS, v)
	}
	return mqtt311.QoS(v), nil
}

// connect dials the broker and starts the metrics server when requested.
func connect(ctx *cli.Context, logger zerolog.Logger) (*session, error) {
	broker, opts, err := clientOptions(ctx, logger)
	if err != nil {
		return nil, err
	}

	s := &session{logger: logger}
	if addr := ctx.String(FlagMetricsAddr.Name); addr != "" {
		opts = append(opts, mqtt311.WithMetrics(mqtt311.NewExpvarMetrics("mqttc")))
		s.metrics = newMetricsServer(addr)
	}

	dialCtx, cancel := context.WithTimeout(ctx.Context, 30*time.Second)
	defer cancel()

	logger.Info().Str("broker", broker).Msg("connecting")
	s.client, err = mqtt311.Dial(dialCtx, broker, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", broker, err)
	}
	logger.Info().Str("client_id", s.client.ClientID()).Msg("connected")
	return s, nil
}

// run executes work alongside the metrics server and closes the client
// when work returns or ctx is cancelled.
func (s *session) run(ctx context.Context, work func(ctx context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.metrics != nil {
		g.Go(func() error {
			s.logger.Info().Str("addr", s.metrics.Addr).Msg("serving metrics")
			if err := s.metrics.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			if s.metrics != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = s.metrics.Shutdown(shutdownCtx)
			}
		}()
		return work(ctx)
	})

	err := g.Wait()
	_ = s.client.Close()
	s.logger.Info().Msg("disconnected")
	return err
}
