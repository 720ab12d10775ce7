package mqtt311

import (
	"context"
	"sync"
)

// Token tracks the completion of an asynchronous client operation.
type Token struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newToken() *Token {
	return &Token{done: make(chan struct{})}
}

// newFailedToken returns a token that already failed with err.
func newFailedToken(err error) *Token {
	t := newToken()
	t.complete(err)
	return t
}

// complete resolves the token. Only the first call has any effect.
func (t *Token) complete(err error) bool {
	resolved := false
	t.once.Do(func() {
		t.err = err
		close(t.done)
		resolved = true
	})
	return resolved
}

// Done returns a channel that is closed once the operation finishes.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the operation finishes or ctx is done.
// It returns the operation error, or the context error on cancellation.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Error returns the operation error. It is nil while the operation is in flight.
func (t *Token) Error() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// ConnectResult is the outcome of a CONNECT exchange.
type ConnectResult struct {
	Accepted       bool
	ReturnCode     ConnectReturnCode
	SessionPresent bool
}

// ConnectToken tracks a connection attempt.
type ConnectToken struct {
	Token
	result ConnectResult
}

func newConnectToken() *ConnectToken {
	return &ConnectToken{Token: Token{done: make(chan struct{})}}
}

func (t *ConnectToken) resolve(result ConnectResult, err error) {
	t.once.Do(func() {
		t.result = result
		t.err = err
		close(t.done)
	})
}

// Result returns the CONNACK outcome. It is the zero value until Done is closed
// or when the attempt failed before a CONNACK arrived.
func (t *ConnectToken) Result() ConnectResult {
	select {
	case <-t.done:
		return t.result
	default:
		return ConnectResult{}
	}
}
