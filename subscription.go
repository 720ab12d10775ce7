package mqtt311

import (
	"context"
	"fmt"
	"reflect"
)

// MessageHandler processes messages delivered to a subscription.
//
// The message payload is only valid until OnMessage returns. Use
// msg.Clone() to keep it longer.
type MessageHandler interface {
	OnMessage(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(ctx context.Context, msg *Message) error

// OnMessage calls f(ctx, msg).
func (f HandlerFunc) OnMessage(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// sameHandler reports whether a and b are the same handler. Function
// handlers compare by their code pointer.
func sameHandler(a, b MessageHandler) bool {
	if subscriberEqual(a, b) {
		return true
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Func && vb.Kind() == reflect.Func {
		return va.Type() == vb.Type() && va.Pointer() == vb.Pointer()
	}
	return false
}

type subscription struct {
	topic   string
	handler MessageHandler
	once    bool
	called  bool
}

// subscriptionTable holds the locally active subscriptions. It is owned by
// the event loop.
type subscriptionTable struct {
	byTopic map[string][]*subscription
	matcher *TopicMatcher
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{
		byTopic: make(map[string][]*subscription),
		matcher: NewTopicMatcher(),
	}
}

func (t *subscriptionTable) add(s *subscription) {
	if err := t.matcher.Subscribe(s.topic, s); err != nil {
		return
	}
	t.byTopic[s.topic] = append(t.byTopic[s.topic], s)
}

// has reports whether topic has at least one local subscription.
func (t *subscriptionTable) has(topic string) bool {
	return len(t.byTopic[topic]) > 0
}

// remove drops the subscriptions of topic using one of handlers, or every
// subscription of topic when handlers is empty. It returns how many were removed.
func (t *subscriptionTable) remove(topic string, handlers []MessageHandler) int {
	subs := t.byTopic[topic]
	kept := subs[:0]
	removed := 0

	for _, s := range subs {
		if len(handlers) == 0 || containsHandler(handlers, s.handler) {
			_ = t.matcher.Unsubscribe(topic, s)
			removed++
			continue
		}
		kept = append(kept, s)
	}

	if len(kept) == 0 {
		delete(t.byTopic, topic)
	} else {
		t.byTopic[topic] = kept
	}
	return removed
}

func (t *subscriptionTable) removeSub(s *subscription) {
	subs := t.byTopic[s.topic]
	for i, existing := range subs {
		if existing == s {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(t.byTopic, s.topic)
	} else {
		t.byTopic[s.topic] = subs
	}
	_ = t.matcher.Unsubscribe(s.topic, s)
}

// match returns the subscriptions matching topic. Once-subscriptions are
// marked called and removed; emptied lists the filters left without any
// local subscription as a result.
func (t *subscriptionTable) match(topic string) (matched []*subscription, emptied []string) {
	for _, v := range t.matcher.Match(topic) {
		s, ok := v.(*subscription)
		if !ok || s.called {
			continue
		}
		matched = append(matched, s)

		if s.once {
			s.called = true
			t.removeSub(s)
			if !t.has(s.topic) {
				emptied = append(emptied, s.topic)
			}
		}
	}
	return matched, emptied
}

func (t *subscriptionTable) clear() {
	t.byTopic = make(map[string][]*subscription)
	t.matcher = NewTopicMatcher()
}

// topics returns the number of filters with local subscriptions.
func (t *subscriptionTable) topics() int {
	return len(t.byTopic)
}

func containsHandler(handlers []MessageHandler, h MessageHandler) bool {
	for _, candidate := range handlers {
		if sameHandler(candidate, h) {
			return true
		}
	}
	return false
}

// Subscribe registers handler for messages matching topic and subscribes
// at qos. If the broker already holds the subscription the token completes
// immediately; if a SUBSCRIBE for topic is in flight the call joins it.
func (c *Client) Subscribe(topic string, qos QoS, handler MessageHandler) *Token {
	return c.subscribe(topic, qos, handler, false)
}

// On is Subscribe at QoS 0.
func (c *Client) On(topic string, handler MessageHandler) *Token {
	return c.subscribe(topic, AtMostOnce, handler, false)
}

// SubscribeOnce is Subscribe for a handler that is removed after its first message.
func (c *Client) SubscribeOnce(topic string, qos QoS, handler MessageHandler) *Token {
	return c.subscribe(topic, qos, handler, true)
}

// Once is SubscribeOnce at QoS 0.
func (c *Client) Once(topic string, handler MessageHandler) *Token {
	return c.subscribe(topic, AtMostOnce, handler, true)
}

func (c *Client) subscribe(topic string, qos QoS, handler MessageHandler, once bool) *Token {
	if err := ValidateTopicFilter(topic); err != nil {
		return newFailedToken(fmt.Errorf("%w: %w", ErrInvalidTopic, err))
	}
	if !qos.Valid() {
		return newFailedToken(ErrInvalidQoS)
	}
	if handler == nil {
		return newFailedToken(ErrNilHandler)
	}

	token := newToken()
	sub := &subscription{topic: topic, handler: handler, once: once}
	if !c.post(func() { c.addSubscription(sub, qos, token) }) {
		token.complete(ErrClientClosed)
	}
	return token
}

func (c *Client) addSubscription(sub *subscription, qos QoS, token *Token) {
	topic := sub.topic

	_, unsubscribing := c.pendingUnsubscribeTopics[topic]
	if _, ok := c.serverSubs[topic]; ok && !unsubscribing {
		c.subs.add(sub)
		token.complete(nil)
		return
	}

	if entry, ok := c.pendingSubscribeTopics[topic]; ok {
		entry.subs = append(entry.subs, sub)
		entry.tokens = append(entry.tokens, token)
		return
	}

	id, err := c.ids.Allocate()
	if err != nil {
		token.complete(err)
		return
	}

	entry := &pendingSubscribe{
		id:     id,
		topic:  topic,
		qos:    qos,
		subs:   []*subscription{sub},
		tokens: []*Token{token},
	}
	c.subscribes[id] = entry
	c.pendingSubscribeTopics[topic] = entry

	if c.state == stateConnected {
		c.sendSubscribe(entry)
	} else {
		c.subscribeQueue = append(c.subscribeQueue, entry)
	}
}

func (c *Client) sendSubscribe(entry *pendingSubscribe) {
	entry.sent = true
	entry.retry = c.newRetry(PacketSUBSCRIBE, entry.id,
		func() bool { return entry.finished },
		func(int) { _ = c.write(entry.packet(), nil) },
		func(err *RetransmissionError) {
			c.removeSubscribe(entry)
			completeAll(entry.tokens, err)
		},
	)

	if err := c.write(entry.packet(), nil); err != nil {
		c.removeSubscribe(entry)
		completeAll(entry.tokens, err)
		return
	}
	entry.retry.start()
}

// flushSubscribes sends the SUBSCRIBEs queued while offline.
func (c *Client) flushSubscribes() {
	queue := c.subscribeQueue
	c.subscribeQueue = nil
	for _, entry := range queue {
		if !entry.finished {
			c.sendSubscribe(entry)
		}
	}
}

func (c *Client) removeSubscribe(entry *pendingSubscribe) {
	entry.finished = true
	if entry.retry != nil {
		entry.retry.stop()
	}
	if c.subscribes[entry.id] == entry {
		delete(c.subscribes, entry.id)
		_ = c.ids.Release(entry.id)
	}
	if c.pendingSubscribeTopics[entry.topic] == entry {
		delete(c.pendingSubscribeTopics, entry.topic)
	}
}

// Off removes handlers from topic, or every handler of topic when none are
// given. UNSUBSCRIBE is sent only once no local handler is left and the
// broker holds the subscription; otherwise the token completes immediately.
func (c *Client) Off(topic string, handlers ...MessageHandler) *Token {
	if err := ValidateTopicFilter(topic); err != nil {
		return newFailedToken(fmt.Errorf("%w: %w", ErrInvalidTopic, err))
	}

	token := newToken()
	if !c.post(func() { c.removeSubscription(topic, handlers, token) }) {
		token.complete(ErrClientClosed)
	}
	return token
}

func (c *Client) removeSubscription(topic string, handlers []MessageHandler, token *Token) {
	c.subs.remove(topic, handlers)
	if entry, ok := c.pendingSubscribeTopics[topic]; ok {
		entry.dropHandlers(handlers)
	}
	c.unsubscribeIfUnused(topic, token)
}

// unsubscribeIfUnused sends UNSUBSCRIBE for topic when nothing local uses it
// and the broker holds it. token, if set, completes with the outcome.
func (c *Client) unsubscribeIfUnused(topic string, token *Token) {
	done := func(err error) {
		if token != nil {
			token.complete(err)
		}
	}

	if c.subs.has(topic) {
		done(nil)
		return
	}
	if _, ok := c.serverSubs[topic]; !ok || c.state != stateConnected {
		done(nil)
		return
	}

	if entry, ok := c.pendingUnsubscribeTopics[topic]; ok {
		if token != nil {
			entry.tokens = append(entry.tokens, token)
		}
		return
	}

	id, err := c.ids.Allocate()
	if err != nil {
		done(err)
		return
	}

	entry := &pendingUnsubscribe{id: id, topic: topic}
	if token != nil {
		entry.tokens = []*Token{token}
	}
	c.unsubscribes[id] = entry
	c.pendingUnsubscribeTopics[topic] = entry

	entry.retry = c.newRetry(PacketUNSUBSCRIBE, id,
		func() bool { return entry.finished },
		func(int) { _ = c.write(entry.packet(), nil) },
		func(err *RetransmissionError) {
			c.removeUnsubscribe(entry)
			completeAll(entry.tokens, err)
		},
	)

	if err := c.write(entry.packet(), nil); err != nil {
		c.removeUnsubscribe(entry)
		completeAll(entry.tokens, err)
		return
	}
	entry.retry.start()
}

func (c *Client) removeUnsubscribe(entry *pendingUnsubscribe) {
	entry.finished = true
	if entry.retry != nil {
		entry.retry.stop()
	}
	if c.unsubscribes[entry.id] == entry {
		delete(c.unsubscribes, entry.id)
		_ = c.ids.Release(entry.id)
	}
	if c.pendingUnsubscribeTopics[entry.topic] == entry {
		delete(c.pendingUnsubscribeTopics, entry.topic)
	}
}
