package mqtt311

import (
	"fmt"
	"time"
)

// Publish sends a message to topic. The token completes once a QoS 0
// message is written, or when the broker acknowledges a QoS 1 (PUBACK) or
// QoS 2 (PUBCOMP) message.
//
// The payload is copied; the caller may reuse it after Publish returns.
// Publishing while disconnected queues the message until the next CONNACK.
func (c *Client) Publish(topic string, payload []byte, qos QoS, retain bool) *Token {
	msg := &Message{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  retain,
	}

	if len(c.options.producerInterceptors) > 0 {
		msg = applyProducerInterceptors(c.logger, c.options.producerInterceptors, msg)
		if msg == nil {
			return newFailedToken(nil)
		}
	}

	return c.publish(msg)
}

// PublishMessage is Publish for a prepared message. PacketID and Duplicate
// are ignored.
func (c *Client) PublishMessage(msg *Message) *Token {
	if msg == nil {
		return newFailedToken(fmt.Errorf("%w: nil message", ErrInvalidTopic))
	}
	return c.Publish(msg.Topic, msg.Payload, msg.QoS, msg.Retain)
}

func (c *Client) publish(msg *Message) *Token {
	if err := ValidateTopicName(msg.Topic); err != nil {
		return newFailedToken(fmt.Errorf("%w: %w", ErrInvalidTopic, err))
	}
	if !msg.QoS.Valid() {
		return newFailedToken(ErrInvalidQoS)
	}
	if c.closed.Load() {
		return newFailedToken(ErrClientClosed)
	}

	c.metrics.BufferAllocated()
	entry := &pendingPublish{
		topic:   msg.Topic,
		qos:     msg.QoS,
		retain:  msg.Retain,
		payload: newPayloadBuffer(msg.Payload, c.metrics.BufferReleased),
		token:   newToken(),
	}

	if !c.post(func() { c.enqueuePublish(entry) }) {
		entry.payload.Release()
		entry.token.complete(ErrClientClosed)
	}
	return entry.token
}

func (c *Client) enqueuePublish(entry *pendingPublish) {
	if entry.qos > AtMostOnce {
		id, err := c.ids.Allocate()
		if err != nil {
			c.finishPublish(entry, err)
			return
		}
		entry.id = id
		c.publishes[id] = entry
	}

	c.outbox = append(c.outbox, entry)
	c.flush()
}

// flush sends queued publishes in order while connected, the in-flight
// window has room and the rate limiter allows.
func (c *Client) flush() {
	for len(c.outbox) > 0 && c.state == stateConnected {
		entry := c.outbox[0]
		if entry.finished {
			c.popOutbox()
			continue
		}

		if entry.qos > AtMostOnce {
			if !c.flow.TryAcquire() {
				return
			}
			entry.slot = true
		}

		if c.limiter != nil {
			res := c.limiter.Reserve()
			if d := res.Delay(); d > 0 {
				res.Cancel()
				if entry.slot {
					entry.slot = false
					c.flow.Release()
				}
				c.armFlush(d)
				return
			}
		}

		c.popOutbox()
		c.sendPublish(entry)
	}
}

func (c *Client) popOutbox() {
	c.outbox[0] = nil
	c.outbox = c.outbox[1:]
}

func (c *Client) armFlush(d time.Duration) {
	if c.flushTimer != nil {
		return
	}
	c.flushTimer = c.sched.schedule(d, func() {
		c.flushTimer = nil
		c.flush()
	})
}

func (c *Client) sendPublish(entry *pendingPublish) {
	entry.sent = true
	entry.sentAt = c.sched.now()
	if entry.slot {
		c.metrics.SetInflight(c.flow.InFlight())
	}

	if entry.qos == AtMostOnce {
		err := c.write(entry.packet(false), func(err error) {
			if err == nil {
				c.metrics.MessageSent(entry.qos)
			}
			c.finishPublish(entry, err)
		})
		if err != nil {
			c.finishPublish(entry, err)
		}
		return
	}

	entry.publishRetry = c.newRetry(PacketPUBLISH, entry.id,
		func() bool { return entry.finished || entry.released },
		func(int) { _ = c.write(entry.packet(true), nil) },
		func(err *RetransmissionError) { c.publishGaveUp(entry, err) },
	)

	err := c.write(entry.packet(false), func(err error) {
		if err == nil {
			c.metrics.MessageSent(entry.qos)
		}
	})
	if err != nil {
		c.logger.Warn("publish failed", LogFields{
			LogFieldTopic:    entry.topic,
			LogFieldPacketID: entry.id,
			LogFieldError:    err,
		})
		c.finishPublish(entry, err)
		return
	}
	entry.publishRetry.start()
}

func (c *Client) publishGaveUp(entry *pendingPublish, err *RetransmissionError) {
	c.finishPublish(entry, err)
	c.flush()
}
