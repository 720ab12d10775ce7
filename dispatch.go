package mqtt311

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"
)

// handlePacket runs the client state machine for one inbound packet.
func (c *Client) handlePacket(seq uint64, pkt Packet) {
	if c.conn == nil || c.conn.seq != seq {
		return
	}

	c.metrics.PacketReceived(pkt.Type())
	if c.keepAlive != nil {
		c.keepAlive.readActivity()
	}
	c.observeReceived(pkt)

	if c.state == stateConnecting {
		if connack, ok := pkt.(*ConnackPacket); ok {
			c.handleConnack(connack)
			return
		}
		c.protocolViolation(pkt)
		return
	}

	switch p := pkt.(type) {
	case *PublishPacket:
		c.handlePublish(p)
	case *PubackPacket:
		c.handlePuback(p)
	case *PubrecPacket:
		c.handlePubrec(p)
	case *PubrelPacket:
		c.handlePubrel(p)
	case *PubcompPacket:
		c.handlePubcomp(p)
	case *SubackPacket:
		c.handleSuback(p)
	case *UnsubackPacket:
		c.handleUnsuback(p)
	case *PingreqPacket:
		_ = c.write(&PingrespPacket{}, nil)
	case *PingrespPacket:
		if c.keepAlive != nil {
			c.keepAlive.pong()
		}
	case *DisconnectPacket:
		c.handleDisconnect()
	default:
		c.protocolViolation(pkt)
	}
}

func (c *Client) protocolViolation(pkt Packet) {
	err := fmt.Errorf("%w: unexpected %s while %s", ErrProtocolViolation, pkt.Type(), c.state)
	c.logger.Error("protocol violation", LogFields{
		LogFieldPacketType: pkt.Type().String(),
		LogFieldError:      err,
	})
	c.conn.close(err)
}

// handleDisconnect reports a DISCONNECT from the broker. The connection
// stays open until the broker closes it.
func (c *Client) handleDisconnect() {
	c.logger.Info("server sent DISCONNECT", nil)
	c.emit(NewDisconnectError(true))

	if cb, ok := c.callback.(ServerDisconnectCallback); ok {
		c.exec.submit(cb.ServerDisconnected)
	}
}

// handlePublish processes an incoming PUBLISH packet.
func (c *Client) handlePublish(p *PublishPacket) {
	c.metrics.MessageReceived(p.QoS)
	id := p.PacketID

	switch p.QoS {
	case AtMostOnce:
		c.deliver(messageFromPublish(p), c.inboundPayload(p.Payload), nil)

	case AtLeastOnce:
		conn := c.conn
		c.deliver(messageFromPublish(p), c.inboundPayload(p.Payload), func() {
			c.post(func() {
				if c.conn == conn {
					_ = c.write(&PubackPacket{PacketID: id}, nil)
				}
			})
		})

	case ExactlyOnce:
		if _, ok := c.incoming[id]; !ok {
			in := &incomingPublish{
				msg:     messageFromPublish(p),
				payload: c.inboundPayload(p.Payload),
			}
			in.msg.Payload = nil
			in.retry = c.newRetry(PacketPUBREC, id,
				func() bool { return c.incoming[id] != in },
				func(int) { _ = c.write(&PubrecPacket{PacketID: id}, nil) },
				func(err *RetransmissionError) {
					if c.incoming[id] == in {
						delete(c.incoming, id)
						in.payload.Release()
					}
				},
			)
			c.incoming[id] = in
			in.retry.start()
		}
		// PUBREC goes out for every copy; delivery waits for PUBREL.
		_ = c.write(&PubrecPacket{PacketID: id}, nil)
	}
}

func (c *Client) inboundPayload(payload []byte) *payloadBuffer {
	c.metrics.BufferAllocated()
	return newPayloadBuffer(payload, c.metrics.BufferReleased)
}

func (c *Client) handlePubrel(p *PubrelPacket) {
	if in, ok := c.incoming[p.PacketID]; ok {
		delete(c.incoming, p.PacketID)
		in.retry.stop()
		c.deliver(in.msg, in.payload, nil)
	}
	_ = c.write(&PubcompPacket{PacketID: p.PacketID}, nil)
}

func (c *Client) handlePuback(p *PubackPacket) {
	entry, ok := c.publishes[p.PacketID]
	if !ok || entry.qos != AtLeastOnce || !entry.sent {
		return
	}
	c.metrics.PublishLatency(c.sched.now().Sub(entry.sentAt))
	c.finishPublish(entry, nil)
	c.flush()
}

func (c *Client) handlePubrec(p *PubrecPacket) {
	id := p.PacketID
	entry, ok := c.publishes[id]
	if !ok {
		// Lets the broker drop state we no longer hold.
		_ = c.write(&PubrelPacket{PacketID: id}, nil)
		return
	}
	if entry.qos != ExactlyOnce || !entry.sent {
		return
	}

	if entry.publishRetry != nil {
		entry.publishRetry.stop()
	}
	_ = c.write(&PubrelPacket{PacketID: id}, nil)
	if entry.released {
		return
	}

	entry.released = true
	entry.pubrelRetry = c.newRetry(PacketPUBREL, id,
		func() bool { return entry.finished },
		func(int) { _ = c.write(&PubrelPacket{PacketID: id}, nil) },
		func(err *RetransmissionError) { c.publishGaveUp(entry, err) },
	)
	entry.pubrelRetry.start()
}

func (c *Client) handlePubcomp(p *PubcompPacket) {
	entry, ok := c.publishes[p.PacketID]
	if !ok || entry.qos != ExactlyOnce || !entry.sent {
		return
	}
	c.metrics.PublishLatency(c.sched.now().Sub(entry.sentAt))
	c.finishPublish(entry, nil)
	c.flush()
}

func (c *Client) handleSuback(p *SubackPacket) {
	entry, ok := c.subscribes[p.PacketID]
	if !ok {
		return
	}
	c.removeSubscribe(entry)

	code := SubackFailure
	if len(p.ReturnCodes) > 0 {
		code = p.ReturnCodes[0]
	}

	if code.Failed() {
		err := NewSubscribeError(entry.topic, code)
		c.logger.Warn("subscription refused", LogFields{
			LogFieldTopic:      entry.topic,
			LogFieldReturnCode: code.String(),
		})
		completeAll(entry.tokens, err)
		return
	}

	c.serverSubs[entry.topic] = QoS(code)
	for _, s := range entry.subs {
		c.subs.add(s)
	}
	completeAll(entry.tokens, nil)

	// Every handler left with Off while the SUBSCRIBE was in flight.
	if len(entry.subs) == 0 {
		c.unsubscribeIfUnused(entry.topic, nil)
	}
}

func (c *Client) handleUnsuback(p *UnsubackPacket) {
	entry, ok := c.unsubscribes[p.PacketID]
	if !ok {
		return
	}
	c.removeUnsubscribe(entry)
	delete(c.serverSubs, entry.topic)
	completeAll(entry.tokens, nil)
}

// newRetry builds a retransmitter wired to the client's scheduler, metrics and logger.
func (c *Client) newRetry(packet PacketType, id uint16, cancelled func() bool, resend func(attempt int), giveUp func(*RetransmissionError)) *retransmitter {
	r := newRetransmitter(c.options.retransmission, c.sched, packet, id)
	r.isCancelled = cancelled
	r.resend = func(attempt int) {
		c.metrics.Retransmitted(packet)
		c.logger.Debug("retransmitting", LogFields{
			LogFieldPacketType: packet.String(),
			LogFieldPacketID:   id,
			LogFieldAttempt:    attempt,
		})
		resend(attempt)
	}
	r.giveUp = func(err *RetransmissionError) {
		c.metrics.RetransmissionFailed(packet)
		c.logger.Warn("retransmission gave up", LogFields{
			LogFieldPacketType: packet.String(),
			LogFieldPacketID:   id,
			LogFieldAttempt:    err.Attempts,
			LogFieldDuration:   err.Elapsed,
			LogFieldError:      err,
		})
		giveUp(err)
	}
	return r
}

// deliver hands msg to every matching subscription on the handler
// goroutine, then releases payload and calls after.
func (c *Client) deliver(msg *Message, payload *payloadBuffer, after func()) {
	matched, emptied := c.subs.match(msg.Topic)
	for _, topic := range emptied {
		c.unsubscribeIfUnused(topic, nil)
	}

	handlers := make([]MessageHandler, 0, len(matched))
	for _, s := range matched {
		handlers = append(handlers, s.handler)
	}
	if len(handlers) == 0 && c.options.defaultHandler != nil {
		handlers = append(handlers, c.options.defaultHandler)
	}

	ctx := c.ctx
	interceptors := c.options.consumerInterceptors

	submitted := c.exec.submit(func() {
		defer func() {
			payload.Release()
			if after != nil {
				after()
			}
		}()

		msg.Payload = payload.Bytes()
		view := applyConsumerInterceptors(c.logger, interceptors, msg)
		if view == nil {
			return
		}

		for _, h := range handlers {
			m := *view
			c.runHandler(ctx, h, &m)
		}
	})
	if !submitted {
		payload.Release()
	}
}

func (c *Client) runHandler(ctx context.Context, h MessageHandler, msg *Message) {
	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() {
		err = h.OnMessage(ctx, msg)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	if err != nil {
		c.logger.Error("message handler failed", LogFields{
			LogFieldTopic: msg.Topic,
			LogFieldError: err,
		})
	}
}
