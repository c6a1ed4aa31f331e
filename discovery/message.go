// Package discovery lets stations find their provider on the local network without knowing its
// address in advance.
//
// A station sends a query datagram to a multicast (or broadcast) group and the provider's
// Responder answers it directly with the provider's address. Delivery is best effort: queries
// are retried a bounded number of times and callers fall back to a configured address.
package discovery

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// Protocol identifies sensorhub discovery datagrams.
	Protocol = "sensorhub-discovery"
	// Version is the version of the datagram format.
	Version = 1
	// DefaultGroupAddress is the multicast group and port queries are sent to.
	DefaultGroupAddress = "239.255.77.77:7077"
	// DefaultAttempts is how many queries are sent before giving up.
	DefaultAttempts = 3

	maxDatagramSize = 1024
)

// MessageType tells queries and responses apart.
type MessageType string

// The discovery message types.
const (
	TypeQuery    = MessageType("query")
	TypeResponse = MessageType("response")
)

// Message is a discovery datagram. Responses echo the ID of the query they answer.
type Message struct {
	Protocol string      `json:"protocol"`
	Version  int         `json:"version"`
	Type     MessageType `json:"type"`
	ID       string      `json:"id"`
	Address  string      `json:"address,omitempty"`
}

// NewQuery returns a query with a fresh ID.
func NewQuery() Message {
	return Message{Protocol: Protocol, Version: Version, Type: TypeQuery, ID: uuid.NewString()}
}

// Answer returns the response to q advertising address.
func (q Message) Answer(address string) Message {
	return Message{Protocol: Protocol, Version: Version, Type: TypeResponse, ID: q.ID, Address: address}
}

// Validate checks that m is a well formed datagram of this protocol version.
func (m Message) Validate() error {
	if m.Protocol != Protocol {
		return errors.Errorf("unexpected protocol %q", m.Protocol)
	}
	if m.Version != Version {
		return errors.Errorf("unsupported version %d", m.Version)
	}
	if m.ID == "" {
		return errors.New("missing id")
	}
	switch m.Type {
	case TypeQuery:
	case TypeResponse:
		if m.Address == "" {
			return errors.New("response without address")
		}
	default:
		return errors.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

// Marshal encodes m into a datagram.
func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes and validates a datagram.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, errors.Wrap(err, "malformed discovery datagram")
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
