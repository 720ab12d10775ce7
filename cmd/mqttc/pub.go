package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func runPublish(ctx *cli.Context, logger zerolog.Logger) error {
	qos, err := parseQoS(ctx)
	if err != nil {
		return err
	}
	topic := ctx.String(FlagTopic.Name)
	count := max(ctx.Int(FlagCount.Name), 1)
	interval := ctx.Duration(FlagInterval.Name)
	retain := ctx.Bool(FlagRetain.Name)

	payload := []byte(ctx.String(FlagMessage.Name))
	if !ctx.IsSet(FlagMessage.Name) {
		if payload, err = io.ReadAll(ctx.App.Reader); err != nil {
			return fmt.Errorf("reading payload: %w", err)
		}
	}

	s, err := connect(ctx, logger)
	if err != nil {
		return err
	}

	return s.run(ctx.Context, func(runCtx context.Context) error {
		for i := range count {
			if i > 0 && interval > 0 {
				select {
				case <-time.After(interval):
				case <-runCtx.Done():
					return nil
				}
			}

			if err := s.client.Publish(topic, payload, qos, retain).Wait(runCtx); err != nil {
				return fmt.Errorf("publishing to %s: %w", topic, err)
			}
			logger.Debug().Str("topic", topic).Int("bytes", len(payload)).Int("seq", i+1).Msg("published")
		}
		return nil
	})
}
