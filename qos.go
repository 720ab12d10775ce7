package mqtt311

import (
	"errors"
	"fmt"
)

var (
	ErrPacketIDExhausted = errors.New("mqtt311: no available packet IDs")
	ErrPacketIDNotFound  = errors.New("mqtt311: packet ID not found")
)

// QoS is an MQTT delivery guarantee level.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

// Valid reports whether q is 0, 1 or 2.
func (q QoS) Valid() bool {
	return q <= ExactlyOnce
}

func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "AT_MOST_ONCE"
	case AtLeastOnce:
		return "AT_LEAST_ONCE"
	case ExactlyOnce:
		return "EXACTLY_ONCE"
	default:
		return fmt.Sprintf("QoS(%d)", byte(q))
	}
}

const maxPacketID = 65535

// PacketIDManager hands out packet identifiers in the range 1-65535.
// Identifiers are issued in increasing order, wrap from 65535 back to 1 and
// skip values that have not been released yet.
//
// A PacketIDManager is not safe for concurrent use; the client event loop owns it.
type PacketIDManager struct {
	used map[uint16]struct{}
	next uint16
}

// NewPacketIDManager creates a new packet ID manager.
func NewPacketIDManager() *PacketIDManager {
	return &PacketIDManager{
		used: make(map[uint16]struct{}),
		next: 1,
	}
}

func (m *PacketIDManager) advance() {
	m.next++
	if m.next == 0 {
		m.next = 1
	}
}

// Allocate returns the next available packet ID.
func (m *PacketIDManager) Allocate() (uint16, error) {
	if len(m.used) >= maxPacketID {
		return 0, ErrPacketIDExhausted
	}

	for {
		id := m.next
		m.advance()
		if _, ok := m.used[id]; !ok {
			m.used[id] = struct{}{}
			return id, nil
		}
	}
}

// Release releases a packet ID for reuse.
func (m *PacketIDManager) Release(id uint16) error {
	if _, ok := m.used[id]; !ok {
		return ErrPacketIDNotFound
	}
	delete(m.used, id)
	return nil
}

// IsUsed returns true if the packet ID is currently in use.
func (m *PacketIDManager) IsUsed(id uint16) bool {
	_, ok := m.used[id]
	return ok
}

// InUse returns the count of packet IDs currently in use.
func (m *PacketIDManager) InUse() int {
	return len(m.used)
}

// Reset releases every packet ID. The counter keeps its position.
func (m *PacketIDManager) Reset() {
	clear(m.used)
}
