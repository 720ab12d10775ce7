package router

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vitalvas/mqtt311"
)

// Handler processes a routed message.
type Handler func(ctx context.Context, msg *mqtt311.Message) error

// Condition defines filtering criteria for message routing.
type Condition struct {
	topicFilter   *string
	topicRegexp   *regexp.Regexp
	qos           *mqtt311.QoS
	retain        *bool
	duplicate     *bool
	payloadRegexp *regexp.Regexp
}

// ConditionOption configures a Condition.
type ConditionOption func(*Condition)

// WithTopic sets the topic filter for message matching.
// Supports MQTT wildcards: + (single level) and # (multi level).
func WithTopic(filter string) ConditionOption {
	return func(c *Condition) {
		c.topicFilter = &filter
	}
}

// WithTopicRegexp filters messages by a topic name pattern.
func WithTopicRegexp(pattern *regexp.Regexp) ConditionOption {
	return func(c *Condition) {
		c.topicRegexp = pattern
	}
}

// WithQoS filters messages by QoS level.
func WithQoS(qos mqtt311.QoS) ConditionOption {
	return func(c *Condition) {
		c.qos = &qos
	}
}

// WithRetained filters messages by their retain flag.
func WithRetained(retained bool) ConditionOption {
	return func(c *Condition) {
		c.retain = &retained
	}
}

// WithDuplicate filters messages by their DUP flag.
func WithDuplicate(duplicate bool) ConditionOption {
	return func(c *Condition) {
		c.duplicate = &duplicate
	}
}

// WithPayload filters messages whose payload matches pattern.
func WithPayload(pattern *regexp.Regexp) ConditionOption {
	return func(c *Condition) {
		c.payloadRegexp = pattern
	}
}

type registration struct {
	handler   Handler
	condition Condition
}

// Router dispatches messages to handlers based on conditions.
//
// A Router is itself a mqtt311.MessageHandler, so it can be passed to
// Subscribe or WithDefaultHandler.
type Router struct {
	mu       sync.RWMutex
	handlers []registration
}

// New creates a new Router.
func New() *Router {
	return &Router{
		handlers: make([]registration, 0),
	}
}

// Handle registers a handler with optional conditions.
//
// Examples:
//
//	r.Handle(handler, WithTopic("sensors/#"))
//	r.Handle(handler, WithTopic("sensors/#"), WithQoS(mqtt311.AtLeastOnce))
//	r.Handle(handler, WithTopic("cmd/+"), WithPayload(regexp.MustCompile(`^\{`)))
func (r *Router) Handle(handler Handler, opts ...ConditionOption) {
	var cond Condition
	for _, opt := range opts {
		opt(&cond)
	}

	r.mu.Lock()
	r.handlers = append(r.handlers, registration{
		handler:   handler,
		condition: cond,
	})
	r.mu.Unlock()
}

func (c *Condition) matches(msg *mqtt311.Message) bool {
	if c.topicFilter != nil && !mqtt311.TopicMatch(*c.topicFilter, msg.Topic) {
		return false
	}
	if c.topicRegexp != nil && !c.topicRegexp.MatchString(msg.Topic) {
		return false
	}
	if c.qos != nil && *c.qos != msg.QoS {
		return false
	}
	if c.retain != nil && *c.retain != msg.Retain {
		return false
	}
	if c.duplicate != nil && *c.duplicate != msg.Duplicate {
		return false
	}
	if c.payloadRegexp != nil && !c.payloadRegexp.Match(msg.Payload) {
		return false
	}
	return true
}

// Route dispatches a message to all matching handlers in registration order
// and returns their errors joined.
func (r *Router) Route(ctx context.Context, msg *mqtt311.Message) error {
	if msg == nil {
		return nil
	}

	r.mu.RLock()
	var matched []Handler
	for _, reg := range r.handlers {
		if reg.condition.matches(msg) {
			matched = append(matched, reg.handler)
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, handler := range matched {
		if err := handler(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnMessage implements mqtt311.MessageHandler.
func (r *Router) OnMessage(ctx context.Context, msg *mqtt311.Message) error {
	return r.Route(ctx, msg)
}

// Filters returns the registered topic filters, sorted and without duplicates.
func (r *Router) Filters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filters := make([]string, 0, len(r.handlers))
	for _, reg := range r.handlers {
		if reg.condition.topicFilter != nil {
			filters = append(filters, *reg.condition.topicFilter)
		}
	}
	slices.Sort(filters)
	return slices.Compact(filters)
}

// Len returns the number of registered handlers.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Clear removes all handlers.
func (r *Router) Clear() {
	r.mu.Lock()
	r.handlers = r.handlers[:0]
	r.mu.Unlock()
}

// Subscriber is the part of *mqtt311.Client the router subscribes through.
type Subscriber interface {
	Subscribe(topic string, qos mqtt311.QoS, handler mqtt311.MessageHandler) *mqtt311.Token
}

// SubscribeAll subscribes the router to every registered topic filter at qos
// and waits for the broker to acknowledge them all.
func (r *Router) SubscribeAll(ctx context.Context, client Subscriber, qos mqtt311.QoS) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, filter := range r.Filters() {
		token := client.Subscribe(filter, qos, r)
		g.Go(func() error {
			return token.Wait(ctx)
		})
	}
	return g.Wait()
}
