package mqtt311

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTopicName(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr error
	}{
		{"sensors/temp", nil},
		{"/leading", nil},
		{"trailing/", nil},
		{"a//b", nil},
		{"$SYS/broker/load", nil},
		{"", ErrEmptyTopic},
		{"a/+/b", ErrInvalidTopicName},
		{"a/#", ErrInvalidTopicName},
		{"a\x00b", ErrInvalidTopicName},
		{strings.Repeat("a", 65536), ErrInvalidTopicName},
	}

	for _, tt := range tests {
		err := ValidateTopicName(tt.topic)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, "topic %q", tt.topic)
		} else {
			assert.NoError(t, err, "topic %q", tt.topic)
		}
	}
}

func TestValidateTopicFilter(t *testing.T) {
	valid := []string{"#", "+", "a/+/c", "a/#", "+/+", "/+", "a/b/c", "$SYS/#"}
	for _, f := range valid {
		assert.NoError(t, ValidateTopicFilter(f), f)
	}

	invalid := []string{"a/#/c", "a#", "a/b+", "+a", "##", "a\x00"}
	for _, f := range invalid {
		assert.ErrorIs(t, ValidateTopicFilter(f), ErrInvalidTopicFilter, f)
	}

	assert.ErrorIs(t, ValidateTopicFilter(""), ErrEmptyTopic)
}

func TestTopicMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/d", false},
		{"a/+/c", "a/c", false},
		{"a/+/c", "a/b/c/d", false},
		{"a/#", "a", true},
		{"a/#", "a/b", true},
		{"a/#", "a/b/c", true},
		{"a/#", "b/a", false},
		{"#", "anything/at/all", true},
		{"+", "a", true},
		{"+", "a/b", false},
		{"+/+", "/a", true},
		{"a/b", "a/b", true},
		{"a/b", "a/b/", false},
		{"#", "$SYS/load", false},
		{"+/load", "$SYS/load", false},
		{"$SYS/#", "$SYS/load", true},
		{"", "a", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TopicMatch(tt.filter, tt.topic), "%q vs %q", tt.filter, tt.topic)
	}
}

func TestCompileFilter(t *testing.T) {
	exact, err := CompileFilter("a/b")
	require.NoError(t, err)
	assert.True(t, exact("a/b"))
	assert.False(t, exact("a/c"))

	wild, err := CompileFilter("a/+")
	require.NoError(t, err)
	assert.True(t, wild("a/c"))
	assert.False(t, wild("a/c/d"))

	_, err = CompileFilter("a/#/b")
	assert.Error(t, err)
}

func TestIsSystemTopic(t *testing.T) {
	assert.True(t, IsSystemTopic("$SYS"))
	assert.True(t, IsSystemTopic("$SYS/uptime"))
	assert.False(t, IsSystemTopic("SYS/uptime"))
	assert.False(t, IsSystemTopic("$SYSTEM"))
}

func TestTopicMatcher(t *testing.T) {
	m := NewTopicMatcher()

	require.NoError(t, m.Subscribe("a/+/c", "s1"))
	require.NoError(t, m.Subscribe("a/#", "s2"))
	require.NoError(t, m.Subscribe("a/b/c", "s3"))
	require.NoError(t, m.Subscribe("x/y", "s4"))

	assert.ElementsMatch(t, []any{"s1", "s2", "s3"}, m.Match("a/b/c"))
	assert.ElementsMatch(t, []any{"s2"}, m.Match("a"))
	assert.ElementsMatch(t, []any{"s4"}, m.Match("x/y"))
	assert.Empty(t, m.Match("z"))

	require.NoError(t, m.Unsubscribe("a/#", "s2"))
	assert.ElementsMatch(t, []any{"s1", "s3"}, m.Match("a/b/c"))

	// Unknown filters and subscribers are ignored.
	require.NoError(t, m.Unsubscribe("q/r", "s1"))
	require.NoError(t, m.Unsubscribe("a/+/c", "nobody"))
	assert.Len(t, m.Match("a/b/c"), 2)
}

func TestTopicMatcherSystemTopics(t *testing.T) {
	m := NewTopicMatcher()
	require.NoError(t, m.Subscribe("#", "all"))
	require.NoError(t, m.Subscribe("+/uptime", "plus"))
	require.NoError(t, m.Subscribe("$SYS/#", "sys"))

	assert.Equal(t, []any{"sys"}, m.Match("$SYS/uptime"))
}

func TestTopicMatcherInvalid(t *testing.T) {
	m := NewTopicMatcher()
	assert.Error(t, m.Subscribe("a/#/b", "s"))
	assert.Error(t, m.Unsubscribe("a/#/b", "s"))
	assert.Nil(t, m.Match("a/+"))
}

type keyedSubscriber struct {
	key  string
	tags []string
}

func (k keyedSubscriber) MatchSubscriber(other any) bool {
	o, ok := other.(keyedSubscriber)
	return ok && o.key == k.key
}

func TestTopicMatcherWithCustomMatcher(t *testing.T) {
	m := NewTopicMatcher()
	require.NoError(t, m.Subscribe("a", keyedSubscriber{key: "k1", tags: []string{"x"}}))
	require.NoError(t, m.Subscribe("a", keyedSubscriber{key: "k2"}))

	require.NoError(t, m.Unsubscribe("a", keyedSubscriber{key: "k1"}))

	matched := m.Match("a")
	require.Len(t, matched, 1)
	assert.Equal(t, "k2", matched[0].(keyedSubscriber).key)
}

func TestSubscriberEqualNotComparable(t *testing.T) {
	a := []int{1}
	assert.False(t, subscriberEqual(a, a))
	assert.True(t, subscriberEqual("x", "x"))
}

func BenchmarkTopicMatch(b *testing.B) {
	for b.Loop() {
		TopicMatch("home/+/sensors/#", "home/kitchen/sensors/temp/celsius")
	}
}
