// Package mqtt311 provides an SDK for implementing MQTT 3.1 and 3.1.1 clients.
//
// This package implements the MQTT Version 3.1.1 OASIS Standard:
// https://docs.oasis-open.org/mqtt/mqtt/v3.1.1/os/mqtt-v3.1.1-os.html
//
// # Features
//
//   - All 14 MQTT 3.1.1 control packet types, plus the MQIsdp 3.1 CONNECT
//   - QoS 0, 1, 2 message flows with retransmission and exactly-once delivery
//   - Topic matching with wildcard support (+, #)
//   - Transport: TCP, TLS, WebSocket, WSS, QUIC, Unix sockets, HTTP CONNECT proxies
//   - Automatic reconnection with resubscription
//   - Pluggable logging (zap, zerolog) and metrics (expvar, in-memory)
//
// # Packet Types
//
// The package provides structs for all MQTT 3.1.1 control packets:
//
//   - ConnectPacket, ConnackPacket: Connection establishment
//   - PublishPacket, PubackPacket, PubrecPacket, PubrelPacket, PubcompPacket: Message delivery
//   - SubscribePacket, SubackPacket: Topic subscription
//   - UnsubscribePacket, UnsubackPacket: Topic unsubscription
//   - PingreqPacket, PingrespPacket: Keep-alive
//   - DisconnectPacket: Connection termination
//
// Use ReadPacket and WritePacket to read/write packets from/to connections:
//
//	// Read a packet
//	pkt, n, err := mqtt311.ReadPacket(conn, maxPacketSize)
//
//	// Write a packet
//	n, err := mqtt311.WritePacket(conn, packet, maxPacketSize)
//
// # Client
//
// Every Client method returns immediately. Operations that involve the
// broker return a Token that completes when the broker acknowledges them:
//
//	client, err := mqtt311.Dial(ctx, "tcp://localhost:1883",
//	    mqtt311.WithClientID("my-client"),
//	    mqtt311.WithKeepAlive(60),
//	)
//	defer client.Close()
//
//	err = client.Publish("sensors/temp", []byte("21.5"), mqtt311.AtLeastOnce, false).Wait(ctx)
//
// Connect can also be called on a client created with NewClient. Publishes
// and subscriptions issued before the connection is accepted are queued and
// sent once it is:
//
//	client := mqtt311.NewClient(mqtt311.WithClientID("my-client"))
//	client.Subscribe("cmd/#", mqtt311.AtLeastOnce, handler)
//	token := client.Connect("tls://localhost:8883")
//
// # Subscriptions
//
// Several handlers may share one topic filter. The broker sees a single
// SUBSCRIBE, and an UNSUBSCRIBE is sent only when the last handler is
// removed with Off:
//
//	client.Subscribe("sensors/+/temp", mqtt311.AtLeastOnce, mqtt311.HandlerFunc(
//	    func(ctx context.Context, msg *mqtt311.Message) error {
//	        log.Printf("%s: %s", msg.Topic, msg.Payload)
//	        return nil
//	    }))
//
// SubscribeOnce handlers are removed after their first message.
//
// # Events
//
// Lifecycle events are delivered to the OnEvent handler as errors. Match
// them with errors.Is and errors.As:
//
//	mqtt311.OnEvent(func(c *mqtt311.Client, ev error) {
//	    var lost *mqtt311.ConnectionLostError
//	    if errors.As(ev, &lost) {
//	        log.Printf("connection lost: %v", lost.Cause)
//	    }
//	})
//
// # Topic Matching
//
//	err := mqtt311.ValidateTopicName("sensors/temperature")
//	err = mqtt311.ValidateTopicFilter("sensors/+/status")
//
//	matched := mqtt311.TopicMatch("sensors/#", "sensors/room1/temp")
//
// # Metrics
//
//	// Published through expvar at /debug/vars
//	metrics := mqtt311.NewExpvarMetrics("mqtt")
//
//	// For testing
//	metrics := mqtt311.NewMemoryMetrics()
//
//	client := mqtt311.NewClient(mqtt311.WithMetrics(metrics))
//
// # Logging
//
// Adapters are provided for zap and zerolog:
//
//	client := mqtt311.NewClient(mqtt311.WithLogger(mqtt311.NewZapLogger(zapLogger)))
package mqtt311
