package mqtt311

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricTypeString(t *testing.T) {
	assert.Equal(t, "counter", MetricTypeCounter.String())
	assert.Equal(t, "gauge", MetricTypeGauge.String())
	assert.Equal(t, "histogram", MetricTypeHistogram.String())
	assert.Equal(t, "unknown", MetricType(9).String())
}

func TestNoOpMetrics(t *testing.T) {
	m := &NoOpMetrics{}

	c := m.Counter("c", nil)
	c.Inc()
	c.Add(3)
	assert.Zero(t, c.Value())

	g := m.Gauge("g", nil)
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Add(1)
	g.Sub(1)
	assert.Zero(t, g.Value())

	h := m.Histogram("h", nil)
	h.Observe(1)
	h.ObserveDuration(time.Second)
	assert.Zero(t, h.Count())
	assert.Zero(t, h.Sum())
}

func TestClientMetrics(t *testing.T) {
	mem := NewMemoryMetrics()
	cm := NewClientMetrics(mem)

	cm.Connected()
	cm.Connected()
	cm.ConnectionLost()
	cm.ReconnectScheduled()
	cm.MessageReceived(AtLeastOnce)
	cm.MessageSent(ExactlyOnce)
	cm.Retransmitted(PacketPUBLISH)
	cm.RetransmissionFailed(PacketPUBREL)
	cm.SetInflight(7)
	cm.BufferAllocated()
	cm.BufferAllocated()
	cm.BufferReleased()
	cm.PublishLatency(500 * time.Millisecond)
	cm.PacketReceived(PacketCONNACK)
	cm.PacketSent(PacketCONNECT)

	assert.InDelta(t, 2.0, mem.CounterValue(MetricConnectionsTotal, nil), 1e-9)
	assert.InDelta(t, 1.0, mem.CounterValue(MetricConnectionLost, nil), 1e-9)
	assert.InDelta(t, 1.0, mem.CounterValue(MetricReconnects, nil), 1e-9)
	assert.InDelta(t, 1.0, mem.CounterValue(MetricMessagesReceived, MetricLabels{LabelQoS: "1"}), 1e-9)
	assert.InDelta(t, 1.0, mem.CounterValue(MetricMessagesSent, MetricLabels{LabelQoS: "2"}), 1e-9)
	assert.InDelta(t, 1.0, mem.CounterValue(MetricRetransmissions, MetricLabels{LabelPacketType: "PUBLISH"}), 1e-9)
	assert.InDelta(t, 1.0, mem.CounterValue(MetricRetransmissionFailures, MetricLabels{LabelPacketType: "PUBREL"}), 1e-9)
	assert.InDelta(t, 7.0, mem.GaugeValue(MetricInflight, nil), 1e-9)
	assert.InDelta(t, 1.0, mem.GaugeValue(MetricPayloadBuffers, nil), 1e-9)
	assert.InDelta(t, 1.0, mem.CounterValue(MetricPacketsReceived, MetricLabels{LabelPacketType: "CONNACK"}), 1e-9)
	assert.InDelta(t, 1.0, mem.CounterValue(MetricPacketsSent, MetricLabels{LabelPacketType: "CONNECT"}), 1e-9)

	h := mem.GetHistogram(MetricPublishLatency, nil)
	require.NotNil(t, h)
	assert.Equal(t, uint64(1), h.Count())
	assert.InDelta(t, 0.5, h.Sum(), 1e-9)
}

func TestClientMetricsNil(t *testing.T) {
	cm := NewClientMetrics(nil)
	cm.Connected()
	cm.PublishLatency(time.Second)
}

func TestExpvarMetrics(t *testing.T) {
	m := NewExpvarMetrics("mqtt311_test_expvar")

	m.Counter(MetricPacketsSent, MetricLabels{LabelPacketType: "PINGREQ"}).Inc()
	m.Gauge(MetricInflight, nil).Set(3)

	h := m.Histogram(MetricPublishLatency, nil)
	h.Observe(0.25)
	h.Observe(0.75)
	assert.Equal(t, uint64(2), h.Count())
	assert.InDelta(t, 1.0, h.Sum(), 1e-9)
	assert.Same(t, h, m.Histogram(MetricPublishLatency, nil))

	var vars map[string]float64
	require.NoError(t, json.Unmarshal([]byte(m.Map().String()), &vars))
	assert.InDelta(t, 1.0, vars[MetricPacketsSent+"|packet_type=PINGREQ"], 1e-9)
	assert.InDelta(t, 3.0, vars[MetricInflight], 1e-9)
	assert.InDelta(t, 2.0, vars[MetricPublishLatency+"_count"], 1e-9)

	// Publishing the same name again reuses the map.
	again := NewExpvarMetrics("mqtt311_test_expvar")
	assert.Same(t, m.Map(), again.Map())
	assert.InDelta(t, 1.0, again.Counter(MetricPacketsSent, MetricLabels{LabelPacketType: "PINGREQ"}).Value(), 1e-9)
}
