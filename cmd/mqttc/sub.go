package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/vitalvas/mqtt311"
)

var (
	topicColor = color.New(color.FgCyan, color.Bold)
	flagColor  = color.New(color.FgYellow)
)

// printer writes received messages, one per line.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	limit   int
	seen    int
	done    chan struct{}
}

func newPrinter(out io.Writer, verbose bool, limit int) *printer {
	return &printer{out: out, verbose: verbose, limit: limit, done: make(chan struct{})}
}

func (p *printer) format(msg *mqtt311.Message) string {
	line := topicColor.Sprint(msg.Topic) + " " + string(msg.Payload)
	if p.verbose {
		flags := fmt.Sprintf("[qos=%d", msg.QoS)
		if msg.Retain {
			flags += " retained"
		}
		if msg.Duplicate {
			flags += " dup"
		}
		line = flagColor.Sprint(flags+"]") + " " + line
	}
	return line
}

func (p *printer) OnMessage(_ context.Context, msg *mqtt311.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limit > 0 && p.seen >= p.limit {
		return nil
	}
	p.seen++
	if _, err := fmt.Fprintln(p.out, p.format(msg)); err != nil {
		return err
	}
	if p.limit > 0 && p.seen == p.limit {
		close(p.done)
	}
	return nil
}

func runSubscribe(ctx *cli.Context, logger zerolog.Logger) error {
	qos, err := parseQoS(ctx)
	if err != nil {
		return err
	}
	topics := ctx.StringSlice(FlagTopics.Name)
	for _, topic := range topics {
		if err := mqtt311.ValidateTopicFilter(topic); err != nil {
			return fmt.Errorf("topic %q: %w", topic, err)
		}
	}

	s, err := connect(ctx, logger)
	if err != nil {
		return err
	}

	p := newPrinter(ctx.App.Writer, ctx.Bool(FlagVerbose.Name), ctx.Int(FlagLimit.Name))

	return s.run(ctx.Context, func(runCtx context.Context) error {
		for _, topic := range topics {
			if err := s.client.Subscribe(topic, qos, p).Wait(runCtx); err != nil {
				return fmt.Errorf("subscribing to %s: %w", topic, err)
			}
			logger.Info().Str("topic", topic).Uint8("qos", uint8(qos)).Msg("subscribed")
		}

		select {
		case <-p.done:
		case <-runCtx.Done():
		}
		return nil
	})
}
