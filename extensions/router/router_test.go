package router

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/mqtt311"
)

// collect returns a handler appending topics to *topics.
func collect(topics *[]string) Handler {
	return func(_ context.Context, msg *mqtt311.Message) error {
		*topics = append(*topics, msg.Topic)
		return nil
	}
}

func route(t *testing.T, r *Router, msg *mqtt311.Message) {
	t.Helper()
	require.NoError(t, r.Route(context.Background(), msg))
}

func TestRouterHandle(t *testing.T) {
	r := New()

	var topics []string
	r.Handle(collect(&topics), WithTopic("test/topic"))
	assert.Equal(t, 1, r.Len())

	route(t, r, &mqtt311.Message{Topic: "test/topic"})
	route(t, r, &mqtt311.Message{Topic: "test/other"})
	assert.Equal(t, []string{"test/topic"}, topics)
}

func TestRouterWildcards(t *testing.T) {
	tests := []struct {
		filter string
		topics []string
		want   []string
	}{
		{
			filter: "sensors/+/value",
			topics: []string{"sensors/temp/value", "sensors/hum/value", "sensors/temp/other"},
			want:   []string{"sensors/temp/value", "sensors/hum/value"},
		},
		{
			filter: "sensors/#",
			topics: []string{"sensors", "sensors/temp", "sensors/a/b/c", "other/topic"},
			want:   []string{"sensors", "sensors/temp", "sensors/a/b/c"},
		},
		{
			filter: "#",
			topics: []string{"a", "$SYS/uptime"},
			want:   []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			r := New()
			var got []string
			r.Handle(collect(&got), WithTopic(tt.filter))

			for _, topic := range tt.topics {
				route(t, r, &mqtt311.Message{Topic: topic})
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouterMultipleHandlers(t *testing.T) {
	r := New()

	var order []string
	r.Handle(func(_ context.Context, _ *mqtt311.Message) error {
		order = append(order, "first")
		return nil
	}, WithTopic("a/+"))
	r.Handle(func(_ context.Context, _ *mqtt311.Message) error {
		order = append(order, "second")
		return nil
	}, WithTopic("a/#"))

	route(t, r, &mqtt311.Message{Topic: "a/b"})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRouterConditions(t *testing.T) {
	tests := []struct {
		name string
		opts []ConditionOption
		msg  mqtt311.Message
		want bool
	}{
		{"qos match", []ConditionOption{WithQoS(mqtt311.AtLeastOnce)}, mqtt311.Message{Topic: "a", QoS: mqtt311.AtLeastOnce}, true},
		{"qos mismatch", []ConditionOption{WithQoS(mqtt311.AtLeastOnce)}, mqtt311.Message{Topic: "a", QoS: mqtt311.ExactlyOnce}, false},
		{"retained", []ConditionOption{WithRetained(true)}, mqtt311.Message{Topic: "a", Retain: true}, true},
		{"not retained", []ConditionOption{WithRetained(false)}, mqtt311.Message{Topic: "a", Retain: true}, false},
		{"duplicate", []ConditionOption{WithDuplicate(true)}, mqtt311.Message{Topic: "a", Duplicate: true}, true},
		{"first delivery", []ConditionOption{WithDuplicate(false)}, mqtt311.Message{Topic: "a", Duplicate: true}, false},
		{"payload", []ConditionOption{WithPayload(regexp.MustCompile(`^\{.*\}$`))}, mqtt311.Message{Topic: "a", Payload: []byte(`{"t":1}`)}, true},
		{"payload mismatch", []ConditionOption{WithPayload(regexp.MustCompile(`^\{`))}, mqtt311.Message{Topic: "a", Payload: []byte("21.5")}, false},
		{"topic regexp", []ConditionOption{WithTopicRegexp(regexp.MustCompile(`^dev-\d+/`))}, mqtt311.Message{Topic: "dev-42/state"}, true},
		{"topic regexp mismatch", []ConditionOption{WithTopicRegexp(regexp.MustCompile(`^dev-\d+/`))}, mqtt311.Message{Topic: "dev-x/state"}, false},
		{
			name: "all conditions",
			opts: []ConditionOption{
				WithTopic("cmd/+"),
				WithQoS(mqtt311.ExactlyOnce),
				WithRetained(false),
				WithPayload(regexp.MustCompile("reboot")),
			},
			msg:  mqtt311.Message{Topic: "cmd/node1", QoS: mqtt311.ExactlyOnce, Payload: []byte("reboot now")},
			want: true,
		},
		{
			name: "one condition fails",
			opts: []ConditionOption{WithTopic("cmd/+"), WithQoS(mqtt311.ExactlyOnce)},
			msg:  mqtt311.Message{Topic: "cmd/node1", QoS: mqtt311.AtMostOnce},
			want: false,
		},
		{"no conditions", nil, mqtt311.Message{Topic: "anything"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			var got []string
			r.Handle(collect(&got), tt.opts...)

			msg := tt.msg
			route(t, r, &msg)
			assert.Equal(t, tt.want, len(got) == 1)
		})
	}
}

func TestRouterErrors(t *testing.T) {
	r := New()

	errFirst := errors.New("first")
	errSecond := errors.New("second")
	var calls int
	r.Handle(func(context.Context, *mqtt311.Message) error { calls++; return errFirst })
	r.Handle(func(context.Context, *mqtt311.Message) error { calls++; return nil })
	r.Handle(func(context.Context, *mqtt311.Message) error { calls++; return errSecond })

	err := r.OnMessage(context.Background(), &mqtt311.Message{Topic: "a"})
	assert.ErrorIs(t, err, errFirst)
	assert.ErrorIs(t, err, errSecond)
	assert.Equal(t, 3, calls)
}

func TestRouterNilMessage(t *testing.T) {
	r := New()
	r.Handle(func(context.Context, *mqtt311.Message) error {
		t.Fatal("handler called for nil message")
		return nil
	})

	assert.NoError(t, r.Route(context.Background(), nil))
}

func TestRouterFilters(t *testing.T) {
	r := New()
	noop := func(context.Context, *mqtt311.Message) error { return nil }

	r.Handle(noop, WithTopic("b/#"))
	r.Handle(noop, WithTopic("a/+"))
	r.Handle(noop, WithTopic("b/#"), WithQoS(mqtt311.AtLeastOnce))
	r.Handle(noop, WithQoS(mqtt311.AtMostOnce))

	assert.Equal(t, []string{"a/+", "b/#"}, r.Filters())
	assert.Equal(t, 4, r.Len())

	r.Clear()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Filters())
}

func TestRouterIsMessageHandler(t *testing.T) {
	var handler mqtt311.MessageHandler = New()
	assert.NotNil(t, handler)
}

func TestRouterSubscribeAll(t *testing.T) {
	r := New()
	noop := func(context.Context, *mqtt311.Message) error { return nil }

	client := mqtt311.NewClient()
	require.NoError(t, client.Close())

	// Nothing registered, nothing to wait for.
	require.NoError(t, r.SubscribeAll(context.Background(), client, mqtt311.AtMostOnce))

	r.Handle(noop, WithTopic("a/#"))
	r.Handle(noop, WithTopic("b/+"))

	err := r.SubscribeAll(context.Background(), client, mqtt311.AtLeastOnce)
	assert.ErrorIs(t, err, mqtt311.ErrClientClosed)
}

func TestRouterConcurrentAccess(t *testing.T) {
	r := New()

	var count atomic.Int64
	r.Handle(func(context.Context, *mqtt311.Message) error {
		count.Add(1)
		return nil
	}, WithTopic("test/#"))

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			_ = r.Route(context.Background(), &mqtt311.Message{Topic: "test/topic"})
		})
		wg.Go(func() {
			r.Handle(func(context.Context, *mqtt311.Message) error { return nil }, WithTopic("other"))
			_ = r.Filters()
		})
	}
	wg.Wait()

	assert.Equal(t, int64(50), count.Load())
	assert.Equal(t, 51, r.Len())
}

func BenchmarkRouterRoute(b *testing.B) {
	r := New()
	noop := func(context.Context, *mqtt311.Message) error { return nil }
	for _, filter := range []string{"a/#", "b/+/c", "sensors/+/temp", "x/y/z"} {
		r.Handle(noop, WithTopic(filter))
	}
	msg := &mqtt311.Message{Topic: "sensors/kitchen/temp"}

	ctx := context.Background()
	for b.Loop() {
		_ = r.Route(ctx, msg)
	}
}
