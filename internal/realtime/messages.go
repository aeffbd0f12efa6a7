package realtime

import (
	"encoding/json"
	"errors"

	"glazestudio/internal/domain"
)

type MessageType string

const (
	// TypeRefresh signals that slot state changed; it carries no payload.
	TypeRefresh MessageType = "refresh"
	// TypeNewBooking carries the freshly booked slot, client data included.
	TypeNewBooking MessageType = "new_booking"
)

var ErrMalformedMessage = errors.New("malformed push message")

type Message struct {
	Type MessageType  `json:"type"`
	Data *domain.Slot `json:"data,omitempty"`
}

func RefreshMessage() Message {
	return Message{Type: TypeRefresh}
}

func NewBookingMessage(slot domain.Slot) Message {
	return Message{Type: TypeNewBooking, Data: &slot}
}

// DecodeMessage parses one push frame. Frames that are not JSON objects with
// a type, and new_booking frames without data, are malformed.
func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, errors.Join(ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return Message{}, ErrMalformedMessage
	}
	if msg.Type == TypeNewBooking && msg.Data == nil {
		return Message{}, ErrMalformedMessage
	}
	return msg, nil
}
