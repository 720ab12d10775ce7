package mqtt311

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidTopicName   = errors.New("invalid topic name")
	ErrInvalidTopicFilter = errors.New("invalid topic filter")
	ErrEmptyTopic         = errors.New("topic cannot be empty")
)

const (
	topicSeparator      = '/'
	singleLevelWildcard = '+'
	multiLevelWildcard  = '#'
)

// ValidateTopicName validates a topic name used for PUBLISH.
// Topic names cannot contain wildcards and must be valid UTF-8.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	if len(topic) > maxUint16 {
		return ErrInvalidTopicName
	}

	if !utf8.ValidString(topic) {
		return ErrInvalidTopicName
	}

	// Check for null character and wildcards
	for _, r := range topic {
		if r == 0 {
			return ErrInvalidTopicName
		}
		if r == singleLevelWildcard || r == multiLevelWildcard {
			return ErrInvalidTopicName
		}
	}

	return nil
}

// ValidateTopicFilter validates a subscription topic filter.
// '+' must occupy a whole level; '#' must occupy the last level.
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return ErrEmptyTopic
	}

	if len(filter) > maxUint16 {
		return ErrInvalidTopicFilter
	}

	if !utf8.ValidString(filter) {
		return ErrInvalidTopicFilter
	}

	// Check for null character
	for _, r := range filter {
		if r == 0 {
			return ErrInvalidTopicFilter
		}
	}

	levels := strings.Split(filter, string(topicSeparator))

	for i, level := range levels {
		// Single-level wildcard must occupy entire level
		if strings.Contains(level, string(singleLevelWildcard)) {
			if level != string(singleLevelWildcard) {
				return ErrInvalidTopicFilter
			}
		}

		// Multi-level wildcard must be last level and occupy entire level
		if strings.Contains(level, string(multiLevelWildcard)) {
			if level != string(multiLevelWildcard) {
				return ErrInvalidTopicFilter
			}
			if i != len(levels)-1 {
				return ErrInvalidTopicFilter
			}
		}
	}

	return nil
}

// TopicMatch checks if a topic name matches a topic filter.
// This implementation avoids allocations by not using strings.Split.
func TopicMatch(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}

	// System topics ($SYS/) don't match wildcards at root level
	if topic[0] == '$' {
		if filter[0] == singleLevelWildcard || filter[0] == multiLevelWildcard {
			return false
		}
	}

	return matchTopicNoAlloc(filter, topic)
}

// matchTopicNoAlloc matches topic against filter level by level without
// allocating. An empty trailing level counts: "a/b" does not match "a/b/".
func matchTopicNoAlloc(filter, topic string) bool {
	topicDone := false
	for {
		flevel, frest, fmore := strings.Cut(filter, string(topicSeparator))
		if flevel == string(multiLevelWildcard) {
			return true
		}
		if topicDone {
			return false
		}

		tlevel, trest, tmore := strings.Cut(topic, string(topicSeparator))
		if flevel != string(singleLevelWildcard) && flevel != tlevel {
			return false
		}
		if !fmore {
			return !tmore
		}

		filter, topic = frest, trest
		topicDone = !tmore
	}
}

// Matcher reports whether a topic name matches a compiled filter.
type Matcher func(topic string) bool

// CompileFilter validates filter and returns a Matcher for it.
// Filters without wildcards compile to a plain string comparison.
func CompileFilter(filter string) (Matcher, error) {
	if err := ValidateTopicFilter(filter); err != nil {
		return nil, err
	}

	if !containsWildcard(filter) {
		return func(topic string) bool {
			return topic == filter
		}, nil
	}

	return func(topic string) bool {
		return TopicMatch(filter, topic)
	}, nil
}

// IsSystemTopic returns true if the topic is a system topic ($SYS/).
func IsSystemTopic(topic string) bool {
	return strings.HasPrefix(topic, "$SYS/") || topic == "$SYS"
}

// containsWildcard returns true if the filter contains wildcard characters.
// MQTT wildcards are # (multi-level) and + (single-level).
func containsWildcard(filter string) bool {
	return strings.ContainsAny(filter, "#+")
}

// TopicMatcher provides efficient topic matching with multiple subscriptions.
type TopicMatcher struct {
	root *topicNode
}

type topicNode struct {
	children    map[string]*topicNode
	subscribers []any
	hasWildcard bool
	hasMulti    bool
}

// NewTopicMatcher creates a new topic matcher.
func NewTopicMatcher() *TopicMatcher {
	return &TopicMatcher{
		root: &topicNode{
			children: make(map[string]*topicNode),
		},
	}
}

// Subscribe adds a subscriber for the given topic filter.
func (m *TopicMatcher) Subscribe(filter string, subscriber any) error {
	if err := ValidateTopicFilter(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, string(topicSeparator))
	node := m.root

	for _, level := range levels {
		if node.children == nil {
			node.children = make(map[string]*topicNode)
		}

		child, ok := node.children[level]
		if !ok {
			child = &topicNode{
				children: make(map[string]*topicNode),
			}
			node.children[level] = child

			if level == string(singleLevelWildcard) {
				node.hasWildcard = true
			} else if level == string(multiLevelWildcard) {
				node.hasMulti = true
			}
		}
		node = child
	}

	node.subscribers = append(node.subscribers, subscriber)
	return nil
}

// SubscriberMatcher is an interface for comparing subscribers that are
// not comparable with ==.
type SubscriberMatcher interface {
	MatchSubscriber(other any) bool
}

// Unsubscribe removes a subscriber for the given topic filter.
func (m *TopicMatcher) Unsubscribe(filter string, subscriber any) error {
	if err := ValidateTopicFilter(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, string(topicSeparator))
	node := m.root

	for _, level := range levels {
		child, ok := node.children[level]
		if !ok {
			return nil // Not subscribed
		}
		node = child
	}

	// Remove subscriber using custom matching if available
	matcher, hasMatcher := subscriber.(SubscriberMatcher)
	for i, s := range node.subscribers {
		var match bool
		if hasMatcher {
			match = matcher.MatchSubscriber(s)
		} else {
			match = subscriberEqual(subscriber, s)
		}
		if match {
			node.subscribers = append(node.subscribers[:i], node.subscribers[i+1:]...)
			break
		}
	}

	return nil
}

// subscriberEqual compares two values with ==, reporting false for
// values whose dynamic types are not comparable.
func subscriberEqual(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

// Match returns all subscribers matching the given topic.
func (m *TopicMatcher) Match(topic string) []any {
	if err := ValidateTopicName(topic); err != nil {
		return nil
	}

	levels := strings.Split(topic, string(topicSeparator))
	isSystemTopic := len(topic) > 0 && topic[0] == '$'

	var subscribers []any
	m.matchNode(m.root, levels, 0, isSystemTopic, &subscribers)
	return subscribers
}

func (m *TopicMatcher) matchNode(node *topicNode, levels []string, idx int, isSystemTopic bool, subscribers *[]any) {
	if node == nil {
		return
	}

	// Multi-level wildcard matches everything remaining
	if !isSystemTopic || idx > 0 {
		if child, ok := node.children[string(multiLevelWildcard)]; ok {
			*subscribers = append(*subscribers, child.subscribers...)
		}
	}

	// All levels matched
	if idx >= len(levels) {
		*subscribers = append(*subscribers, node.subscribers...)
		return
	}

	level := levels[idx]

	// Exact match
	if child, ok := node.children[level]; ok {
		m.matchNode(child, levels, idx+1, isSystemTopic, subscribers)
	}

	// Single-level wildcard (not for system topics at root)
	if !isSystemTopic || idx > 0 {
		if child, ok := node.children[string(singleLevelWildcard)]; ok {
			m.matchNode(child, levels, idx+1, isSystemTopic, subscribers)
		}
	}
}
