// Package rpc provides request/response on top of an MQTT 3.1.1 client.
//
// MQTT 3.1.1 has no response topic or correlation data properties, so the
// correlation id travels in the topic. A request for endpoint E is published
// to E.Requests/<id> and answered on E.Responses/<id>. The first payload byte
// of a response carries its status.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitalvas/mqtt311"
)

var (
	// ErrTimeout is returned when a request times out waiting for a response.
	ErrTimeout = errors.New("rpc: request timeout")

	// ErrNotConnected is returned when calling through a disconnected client.
	ErrNotConnected = errors.New("rpc: client not connected")

	// ErrInvalidEndpoint is returned for endpoints with an empty or wildcard topic.
	ErrInvalidEndpoint = errors.New("rpc: invalid endpoint")

	// ErrMalformedResponse is returned for a response without a status byte.
	ErrMalformedResponse = errors.New("rpc: malformed response")
)

const (
	statusOK    byte = 0
	statusError byte = 1
)

// RemoteError is the error a responder returned, as received by the caller.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "rpc: remote error: " + e.Message
}

// Endpoint names the topics of one service.
type Endpoint struct {
	// Requests is the topic prefix requests are published under.
	Requests string
	// Responses is the topic prefix responses are published under.
	Responses string
}

func (e Endpoint) validate() error {
	for _, topic := range []string{e.Requests, e.Responses} {
		if err := mqtt311.ValidateTopicName(topic); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
		}
	}
	return nil
}

// NewEndpoint returns the conventional endpoint for service:
// rpc/<service>/request and rpc/<service>/response.
func NewEndpoint(service string) Endpoint {
	return Endpoint{
		Requests:  "rpc/" + service + "/request",
		Responses: "rpc/" + service + "/response",
	}
}

// Client is the part of *mqtt311.Client used for RPC.
type Client interface {
	Publish(topic string, payload []byte, qos mqtt311.QoS, retain bool) *mqtt311.Token
	Subscribe(topic string, qos mqtt311.QoS, handler mqtt311.MessageHandler) *mqtt311.Token
	SubscribeOnce(topic string, qos mqtt311.QoS, handler mqtt311.MessageHandler) *mqtt311.Token
	Off(topic string, handlers ...mqtt311.MessageHandler) *mqtt311.Token
	IsConnected() bool
}

// HandlerOptions configures the caller side.
type HandlerOptions struct {
	// QoS for requests and response subscriptions. Defaults to 0.
	QoS mqtt311.QoS

	// Timeout applies when the context passed to Call has no deadline.
	// Defaults to 10 seconds.
	Timeout time.Duration
}

// Handler sends requests and waits for their responses.
type Handler struct {
	client  Client
	qos     mqtt311.QoS
	timeout time.Duration
}

// NewHandler creates a caller on client.
func NewHandler(client Client, opts *HandlerOptions) (*Handler, error) {
	if client == nil {
		return nil, errors.New("rpc: client is required")
	}
	if opts == nil {
		opts = &HandlerOptions{}
	}
	if !opts.QoS.Valid() {
		return nil, mqtt311.ErrInvalidQoS
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Handler{
		client:  client,
		qos:     opts.QoS,
		timeout: timeout,
	}, nil
}

// responseWaiter receives the single response for one call.
type responseWaiter struct {
	ch chan []byte
}

func (w *responseWaiter) OnMessage(_ context.Context, msg *mqtt311.Message) error {
	select {
	case w.ch <- append([]byte(nil), msg.Payload...):
	default:
	}
	return nil
}

// Call publishes payload as a request to ep and returns the response payload.
// The response subscription is acknowledged before the request goes out.
func (h *Handler) Call(ctx context.Context, ep Endpoint, payload []byte) ([]byte, error) {
	if err := ep.validate(); err != nil {
		return nil, err
	}
	if !h.client.IsConnected() {
		return nil, ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	responseTopic := ep.Responses + "/" + id
	waiter := &responseWaiter{ch: make(chan []byte, 1)}

	if err := h.client.SubscribeOnce(responseTopic, h.qos, waiter).Wait(ctx); err != nil {
		return nil, wrapContext(fmt.Errorf("rpc: subscribing to response: %w", err))
	}
	defer h.client.Off(responseTopic, waiter)

	if err := h.client.Publish(ep.Requests+"/"+id, payload, h.qos, false).Wait(ctx); err != nil {
		return nil, wrapContext(fmt.Errorf("rpc: publishing request: %w", err))
	}

	select {
	case resp := <-waiter.ch:
		return decodeResponse(resp)
	case <-ctx.Done():
		return nil, wrapContext(ctx.Err())
	}
}

// CallWithTimeout is Call with a fresh context bounded by timeout.
func (h *Handler) CallWithTimeout(ep Endpoint, payload []byte, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return h.Call(ctx, ep, payload)
}

func wrapContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

func decodeResponse(resp []byte) ([]byte, error) {
	if len(resp) == 0 {
		return nil, ErrMalformedResponse
	}
	switch resp[0] {
	case statusOK:
		return resp[1:], nil
	case statusError:
		return nil, &RemoteError{Message: string(resp[1:])}
	default:
		return nil, fmt.Errorf("%w: status %d", ErrMalformedResponse, resp[0])
	}
}

func encodeResponse(payload []byte, err error) []byte {
	if err != nil {
		return append([]byte{statusError}, err.Error()...)
	}
	return append([]byte{statusOK}, payload...)
}

// ServeFunc answers one request.
type ServeFunc func(ctx context.Context, request []byte) ([]byte, error)

// Server answers requests for one endpoint.
type Server struct {
	client Client
	ep     Endpoint
	qos    mqtt311.QoS
	fn     ServeFunc
}

// Serve subscribes to the requests of ep and answers each with fn. It
// returns once the broker acknowledged the subscription.
func Serve(ctx context.Context, client Client, ep Endpoint, qos mqtt311.QoS, fn ServeFunc) (*Server, error) {
	if err := ep.validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.New("rpc: serve func is required")
	}

	s := &Server{client: client, ep: ep, qos: qos, fn: fn}
	if err := client.Subscribe(ep.Requests+"/+", qos, s).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rpc: subscribing to requests: %w", err)
	}
	return s, nil
}

// OnMessage implements mqtt311.MessageHandler.
func (s *Server) OnMessage(ctx context.Context, msg *mqtt311.Message) error {
	id, ok := strings.CutPrefix(msg.Topic, s.ep.Requests+"/")
	if !ok || id == "" {
		return nil
	}

	resp, err := s.fn(ctx, msg.Payload)
	s.client.Publish(s.ep.Responses+"/"+id, encodeResponse(resp, err), s.qos, false)
	return err
}

// Close stops answering requests.
func (s *Server) Close(ctx context.Context) error {
	return s.client.Off(s.ep.Requests+"/+", s).Wait(ctx)
}
