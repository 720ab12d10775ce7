package mqtt311

import "github.com/sourcegraph/conc/panics"

// ProducerInterceptor intercepts messages before they are published.
// Interceptors run in the order they are configured, on the goroutine that
// calls Publish, and each one receives the message returned by the previous one.
type ProducerInterceptor interface {
	// OnSend returns the message to publish. Returning nil drops the
	// message; its token then completes without error.
	//
	// The message is not a copy. Use msg.Clone() to keep the original.
	OnSend(msg *Message) *Message
}

// ConsumerInterceptor intercepts messages after they are received and before
// they reach any handler. Interceptors run on the handler goroutine.
type ConsumerInterceptor interface {
	// OnConsume returns the message to deliver. Returning nil skips delivery;
	// a QoS 1 message is still acknowledged.
	//
	// The message is not a copy. Use msg.Clone() to keep the original.
	OnConsume(msg *Message) *Message
}

// ProducerInterceptorFunc adapts a function to ProducerInterceptor.
type ProducerInterceptorFunc func(msg *Message) *Message

// OnSend calls f(msg).
func (f ProducerInterceptorFunc) OnSend(msg *Message) *Message { return f(msg) }

// ConsumerInterceptorFunc adapts a function to ConsumerInterceptor.
type ConsumerInterceptorFunc func(msg *Message) *Message

// OnConsume calls f(msg).
func (f ConsumerInterceptorFunc) OnConsume(msg *Message) *Message { return f(msg) }

// applyInterceptor runs fn with panic recovery. A panicking interceptor
// leaves the message unchanged.
func applyInterceptor(logger Logger, kind string, msg *Message, fn func(*Message) *Message) *Message {
	var pc panics.Catcher
	result := msg
	pc.Try(func() {
		result = fn(msg)
	})

	if r := pc.Recovered(); r != nil {
		logger.Error(kind+" interceptor panic", LogFields{
			LogFieldTopic: msg.Topic,
			LogFieldError: r.AsError(),
		})
		return msg
	}

	return result
}

// applyProducerInterceptors applies all producer interceptors in order.
// If any interceptor returns nil, the chain stops and nil is returned.
func applyProducerInterceptors(logger Logger, interceptors []ProducerInterceptor, msg *Message) *Message {
	current := msg
	for _, interceptor := range interceptors {
		if current == nil {
			return nil
		}
		current = applyInterceptor(logger, "producer", current, interceptor.OnSend)
	}
	return current
}

// applyConsumerInterceptors applies all consumer interceptors in order.
// If any interceptor returns nil, the chain stops and nil is returned.
func applyConsumerInterceptors(logger Logger, interceptors []ConsumerInterceptor, msg *Message) *Message {
	current := msg
	for _, interceptor := range interceptors {
		if current == nil {
			return nil
		}
		current = applyInterceptor(logger, "consumer", current, interceptor.OnConsume)
	}
	return current
}
