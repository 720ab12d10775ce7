package mqtt311

import "time"

// pendingPublish is an outbound publish from Publish until its final ack.
// QoS 0 entries only live in the outbox.
type pendingPublish struct {
	id       uint16
	topic    string
	qos      QoS
	retain   bool
	payload  *payloadBuffer
	token    *Token
	sent     bool
	sentAt   time.Time
	slot     bool // holds a FlowController slot
	released bool // PUBREC seen, waiting for PUBCOMP
	finished bool

	publishRetry *retransmitter
	pubrelRetry  *retransmitter
}

func (p *pendingPublish) packet(dup bool) *PublishPacket {
	return &PublishPacket{
		Topic:    p.topic,
		Payload:  p.payload.Bytes(),
		QoS:      p.qos,
		Retain:   p.retain,
		DUP:      dup,
		PacketID: p.id,
	}
}

func (p *pendingPublish) stopTimers() {
	if p.publishRetry != nil {
		p.publishRetry.stop()
	}
	if p.pubrelRetry != nil {
		p.pubrelRetry.stop()
	}
}

// pendingSubscribe coalesces every Subscribe call for one topic until SUBACK.
type pendingSubscribe struct {
	id       uint16
	topic    string
	qos      QoS
	subs     []*subscription
	tokens   []*Token
	sent     bool
	finished bool
	retry    *retransmitter
}

func (p *pendingSubscribe) packet() *SubscribePacket {
	return &SubscribePacket{
		PacketID:      p.id,
		Subscriptions: []Subscription{{TopicFilter: p.topic, QoS: p.qos}},
	}
}

// dropHandlers removes the subscriptions using one of handlers, or all of
// them when handlers is empty.
func (p *pendingSubscribe) dropHandlers(handlers []MessageHandler) {
	kept := p.subs[:0]
	for _, s := range p.subs {
		if len(handlers) == 0 || containsHandler(handlers, s.handler) {
			continue
		}
		kept = append(kept, s)
	}
	p.subs = kept
}

type pendingUnsubscribe struct {
	id       uint16
	topic    string
	tokens   []*Token
	finished bool
	retry    *retransmitter
}

func (p *pendingUnsubscribe) packet() *UnsubscribePacket {
	return &UnsubscribePacket{
		PacketID:     p.id,
		TopicFilters: []string{p.topic},
	}
}

// incomingPublish is an inbound QoS 2 message held between PUBLISH and PUBREL.
type incomingPublish struct {
	msg     *Message
	payload *payloadBuffer
	retry   *retransmitter
}

func completeAll(tokens []*Token, err error) {
	for _, t := range tokens {
		t.complete(err)
	}
}

// registries reports the sizes of the four pending tables and the outbox.
type registries struct {
	Publishes    int
	Subscribes   int
	Unsubscribes int
	IncomingQoS2 int
	Outbox       int
}

// pendingCounts snapshots the registries. Loop only.
func (c *Client) pendingCounts() registries {
	return registries{
		Publishes:    len(c.publishes),
		Subscribes:   len(c.subscribes),
		Unsubscribes: len(c.unsubscribes),
		IncomingQoS2: len(c.incoming),
		Outbox:       len(c.outbox),
	}
}

// cancelAll fails every pending operation with err and empties the
// registries. Payload buffers are released exactly once.
func (c *Client) cancelAll(err error) {
	for _, p := range c.publishes {
		c.finishPublish(p, err)
	}
	for _, p := range c.outbox {
		c.finishPublish(p, err)
	}
	c.outbox = nil

	for _, s := range c.subscribes {
		s.finished = true
		if s.retry != nil {
			s.retry.stop()
		}
		_ = c.ids.Release(s.id)
		completeAll(s.tokens, err)
	}
	clear(c.subscribes)
	clear(c.pendingSubscribeTopics)
	c.subscribeQueue = nil

	for _, u := range c.unsubscribes {
		u.finished = true
		if u.retry != nil {
			u.retry.stop()
		}
		_ = c.ids.Release(u.id)
		completeAll(u.tokens, err)
	}
	clear(c.unsubscribes)
	clear(c.pendingUnsubscribeTopics)

	for id, in := range c.incoming {
		in.retry.stop()
		in.payload.Release()
		delete(c.incoming, id)
	}

	c.flow.Reset()
	c.metrics.SetInflight(0)
}

// finishPublish removes p from the registries, releases its resources and
// completes its token with err. It does nothing for a finished entry.
func (c *Client) finishPublish(p *pendingPublish, err error) {
	if p.finished {
		return
	}
	p.finished = true
	p.stopTimers()

	if p.qos > AtMostOnce {
		if c.publishes[p.id] == p {
			delete(c.publishes, p.id)
			_ = c.ids.Release(p.id)
		}
	}
	if p.slot {
		p.slot = false
		c.flow.Release()
		c.metrics.SetInflight(c.flow.InFlight())
	}

	p.payload.Release()
	p.token.complete(err)
}
