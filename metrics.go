package mqtt311

import (
	"time"
)

// MetricType represents the type of metric.
type MetricType int

const (
	// MetricTypeCounter is a monotonically increasing counter.
	MetricTypeCounter MetricType = 0
	// MetricTypeGauge is a value that can go up and down.
	MetricTypeGauge MetricType = 1
	// MetricTypeHistogram tracks distribution of values.
	MetricTypeHistogram MetricType = 2
)

// String returns the string representation of the metric type.
func (t MetricType) String() string {
	switch t {
	case MetricTypeCounter:
		return "counter"
	case MetricTypeGauge:
		return "gauge"
	case MetricTypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics defines the interface for collecting metrics.
type Metrics interface {
	// Counter returns a counter metric.
	Counter(name string, labels MetricLabels) Counter

	// Gauge returns a gauge metric.
	Gauge(name string, labels MetricLabels) Gauge

	// Histogram returns a histogram metric.
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()

	// Add adds the given value to the counter.
	Add(delta float64)

	// Value returns the current value.
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	// Set sets the gauge to the given value.
	Set(value float64)

	// Inc increments the gauge by 1.
	Inc()

	// Dec decrements the gauge by 1.
	Dec()

	// Add adds the given value to the gauge.
	Add(delta float64)

	// Sub subtracts the given value from the gauge.
	Sub(delta float64)

	// Value returns the current value.
	Value() float64
}

// Histogram tracks the distribution of values.
type Histogram interface {
	// Observe records a value.
	Observe(value float64)

	// ObserveDuration records a duration in seconds.
	ObserveDuration(d time.Duration)

	// Count returns the number of observations.
	Count() uint64

	// Sum returns the sum of all observations.
	Sum() float64
}

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

// Counter returns a no-op counter.
func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter {
	return &noOpCounter{}
}

// Gauge returns a no-op gauge.
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge {
	return &noOpGauge{}
}

// Histogram returns a no-op histogram.
func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram {
	return &noOpHistogram{}
}

type noOpCounter struct{}

func (n *noOpCounter) Inc()           {}
func (n *noOpCounter) Add(_ float64)  {}
func (n *noOpCounter) Value() float64 { return 0 }

type noOpGauge struct{}

func (n *noOpGauge) Set(_ float64)  {}
func (n *noOpGauge) Inc()           {}
func (n *noOpGauge) Dec()           {}
func (n *noOpGauge) Add(_ float64)  {}
func (n *noOpGauge) Sub(_ float64)  {}
func (n *noOpGauge) Value() float64 { return 0 }

type noOpHistogram struct{}

func (n *noOpHistogram) Observe(_ float64)               {}
func (n *noOpHistogram) ObserveDuration(_ time.Duration) {}
func (n *noOpHistogram) Count() uint64                   { return 0 }
func (n *noOpHistogram) Sum() float64                    { return 0 }

// Standard metric names for MQTT clients.
const (
	// MetricConnectionsTotal counts accepted CONNACKs.
	MetricConnectionsTotal = "mqtt_client_connections_total"

	// MetricConnectionLost counts connections closed without an explicit disconnect.
	MetricConnectionLost = "mqtt_client_connection_lost_total"

	// MetricReconnects counts scheduled reconnect attempts.
	MetricReconnects = "mqtt_client_reconnects_total"

	// MetricMessagesReceived counts delivered inbound messages.
	MetricMessagesReceived = "mqtt_client_messages_received_total"

	// MetricMessagesSent counts outbound publishes written to the wire.
	MetricMessagesSent = "mqtt_client_messages_sent_total"

	// MetricRetransmissions counts resent packets.
	MetricRetransmissions = "mqtt_client_retransmissions_total"

	// MetricRetransmissionFailures counts entries abandoned after the last attempt.
	MetricRetransmissionFailures = "mqtt_client_retransmission_failures_total"

	// MetricInflight is the number of unacknowledged QoS > 0 publishes.
	MetricInflight = "mqtt_client_inflight"

	// MetricPayloadBuffers is the number of payload buffers not yet released.
	MetricPayloadBuffers = "mqtt_client_payload_buffers"

	// MetricPublishLatency is the time from send to final acknowledgement.
	MetricPublishLatency = "mqtt_client_publish_latency_seconds"

	// MetricPacketsSent is the total number of packets sent.
	MetricPacketsSent = "mqtt_client_packets_sent_total"

	// MetricPacketsReceived is the total number of packets received.
	MetricPacketsReceived = "mqtt_client_packets_received_total"
)

// Standard metric labels.
const (
	// LabelPacketType is the packet type label.
	LabelPacketType = "packet_type"

	// LabelQoS is the QoS level label.
	LabelQoS = "qos"
)

// ClientMetrics provides convenience methods for the client's metrics.
type ClientMetrics struct {
	metrics Metrics
}

// NewClientMetrics creates a new ClientMetrics instance.
func NewClientMetrics(m Metrics) *ClientMetrics {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &ClientMetrics{metrics: m}
}

func qosLabels(qos QoS) MetricLabels {
	return MetricLabels{LabelQoS: string(rune('0' + byte(qos)))}
}

// Connected records an accepted CONNACK.
func (b *ClientMetrics) Connected() {
	b.metrics.Counter(MetricConnectionsTotal, nil).Inc()
}

// ConnectionLost records a lost connection.
func (b *ClientMetrics) ConnectionLost() {
	b.metrics.Counter(MetricConnectionLost, nil).Inc()
}

// ReconnectScheduled records a scheduled reconnect.
func (b *ClientMetrics) ReconnectScheduled() {
	b.metrics.Counter(MetricReconnects, nil).Inc()
}

// MessageReceived records a delivered message.
func (b *ClientMetrics) MessageReceived(qos QoS) {
	b.metrics.Counter(MetricMessagesReceived, qosLabels(qos)).Inc()
}

// MessageSent records a publish written to the wire.
func (b *ClientMetrics) MessageSent(qos QoS) {
	b.metrics.Counter(MetricMessagesSent, qosLabels(qos)).Inc()
}

// Retransmitted records a resent packet.
func (b *ClientMetrics) Retransmitted(packetType PacketType) {
	labels := MetricLabels{LabelPacketType: packetType.String()}
	b.metrics.Counter(MetricRetransmissions, labels).Inc()
}

// RetransmissionFailed records an entry abandoned after its last attempt.
func (b *ClientMetrics) RetransmissionFailed(packetType PacketType) {
	labels := MetricLabels{LabelPacketType: packetType.String()}
	b.metrics.Counter(MetricRetransmissionFailures, labels).Inc()
}

// SetInflight records the in-flight window usage.
func (b *ClientMetrics) SetInflight(n int) {
	b.metrics.Gauge(MetricInflight, nil).Set(float64(n))
}

// BufferAllocated records a new payload buffer.
func (b *ClientMetrics) BufferAllocated() {
	b.metrics.Gauge(MetricPayloadBuffers, nil).Inc()
}

// BufferReleased records a released payload buffer.
func (b *ClientMetrics) BufferReleased() {
	b.metrics.Gauge(MetricPayloadBuffers, nil).Dec()
}

// PublishLatency records the time from send to final acknowledgement.
func (b *ClientMetrics) PublishLatency(d time.Duration) {
	b.metrics.Histogram(MetricPublishLatency, nil).ObserveDuration(d)
}

// PacketReceived records a received packet.
func (b *ClientMetrics) PacketReceived(packetType PacketType) {
	labels := MetricLabels{LabelPacketType: packetType.String()}
	b.metrics.Counter(MetricPacketsReceived, labels).Inc()
}

// PacketSent records a sent packet.
func (b *ClientMetrics) PacketSent(packetType PacketType) {
	labels := MetricLabels{LabelPacketType: packetType.String()}
	b.metrics.Counter(MetricPacketsSent, labels).Inc()
}
