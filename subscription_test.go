package mqtt311

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(context.Context, *Message) error { return nil }

type recordingHandler struct{ name string }

func (h *recordingHandler) OnMessage(context.Context, *Message) error { return nil }

func TestSameHandler(t *testing.T) {
	h1 := &recordingHandler{name: "a"}
	h2 := &recordingHandler{name: "a"}

	assert.True(t, sameHandler(h1, h1))
	assert.False(t, sameHandler(h1, h2))
	assert.True(t, sameHandler(HandlerFunc(noopHandler), HandlerFunc(noopHandler)))
	assert.False(t, sameHandler(HandlerFunc(noopHandler), h1))
}

func TestSubscriptionTableMatch(t *testing.T) {
	table := newSubscriptionTable()
	h := &recordingHandler{}

	wild := &subscription{topic: "a/+", handler: h}
	exact := &subscription{topic: "a/b", handler: h}
	other := &subscription{topic: "x/#", handler: h}
	table.add(wild)
	table.add(exact)
	table.add(other)

	matched, emptied := table.match("a/b")
	assert.ElementsMatch(t, []*subscription{wild, exact}, matched)
	assert.Empty(t, emptied)

	matched, _ = table.match("x/y/z")
	assert.Equal(t, []*subscription{other}, matched)

	matched, _ = table.match("b")
	assert.Empty(t, matched)
	assert.Equal(t, 3, table.topics())
}

func TestSubscriptionTableOnce(t *testing.T) {
	table := newSubscriptionTable()

	once := &subscription{topic: "a/#", handler: &recordingHandler{}, once: true}
	table.add(once)

	matched, emptied := table.match("a/b")
	assert.Equal(t, []*subscription{once}, matched)
	assert.Equal(t, []string{"a/#"}, emptied)
	assert.True(t, once.called)
	assert.False(t, table.has("a/#"))

	matched, _ = table.match("a/b")
	assert.Empty(t, matched)
}

func TestSubscriptionTableOnceSharedFilter(t *testing.T) {
	table := newSubscriptionTable()

	once := &subscription{topic: "a", handler: &recordingHandler{}, once: true}
	persistent := &subscription{topic: "a", handler: &recordingHandler{}}
	table.add(once)
	table.add(persistent)

	matched, emptied := table.match("a")
	assert.Len(t, matched, 2)
	assert.Empty(t, emptied, "filter still has a persistent handler")
	assert.True(t, table.has("a"))

	matched, _ = table.match("a")
	assert.Equal(t, []*subscription{persistent}, matched)
}

func TestSubscriptionTableRemove(t *testing.T) {
	table := newSubscriptionTable()
	h1 := &recordingHandler{name: "1"}
	h2 := &recordingHandler{name: "2"}

	table.add(&subscription{topic: "a", handler: h1})
	table.add(&subscription{topic: "a", handler: h2})
	table.add(&subscription{topic: "b", handler: h1})

	assert.Equal(t, 1, table.remove("a", []MessageHandler{h1}))
	assert.True(t, table.has("a"))

	matched, _ := table.match("a")
	require.Len(t, matched, 1)
	assert.Same(t, h2, matched[0].handler)

	assert.Zero(t, table.remove("a", []MessageHandler{&recordingHandler{}}))
	assert.Equal(t, 1, table.remove("a", nil))
	assert.False(t, table.has("a"))
	assert.Equal(t, 1, table.topics())

	assert.Zero(t, table.remove("missing", nil))
}

func TestSubscriptionTableRemoveFuncHandler(t *testing.T) {
	table := newSubscriptionTable()
	table.add(&subscription{topic: "a", handler: HandlerFunc(noopHandler)})

	assert.Equal(t, 1, table.remove("a", []MessageHandler{HandlerFunc(noopHandler)}))
	assert.Zero(t, table.topics())
}

func TestSubscriptionTableInvalidFilter(t *testing.T) {
	table := newSubscriptionTable()
	table.add(&subscription{topic: "a/#/b", handler: &recordingHandler{}})

	assert.False(t, table.has("a/#/b"))
	assert.Zero(t, table.topics())
}

func TestSubscriptionTableClear(t *testing.T) {
	table := newSubscriptionTable()
	table.add(&subscription{topic: "a", handler: &recordingHandler{}})
	table.add(&subscription{topic: "b/#", handler: &recordingHandler{}})

	table.clear()
	assert.Zero(t, table.topics())

	matched, _ := table.match("b/c")
	assert.Empty(t, matched)
}
