package dataType

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrEmptyPacket     = errors.New("empty packet")
	ErrMalformedPacket = errors.New("malformed packet")
)

var packetValidate = validator.New(validator.WithRequiredStructEnabled())

// MessagePacket is the unit flooded through the mesh. ID is minted once at
// origination and never reused.
type MessagePacket struct {
	ID      string `json:"id"`      // UUID for deduplication
	Content string `json:"content"` // chat text, command, or SOS result
}

// wirePacket distinguishes a missing content key from an empty one.
type wirePacket struct {
	ID      string  `json:"id" validate:"required"`
	Content *string `json:"content" validate:"required"`
}

// ShortID returns the id prefix shown in the node log.
func (p MessagePacket) ShortID() string {
	if len(p.ID) <= 4 {
		return p.ID
	}
	return p.ID[:4]
}

func EncodePacket(p MessagePacket) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode packet %s: %w", p.ID, err)
	}
	return data, nil
}

// DecodePacket parses exactly one packet body. Both fields must be present
// and the id must be non-empty.
func DecodePacket(data []byte) (MessagePacket, error) {
	if len(data) == 0 {
		return MessagePacket{}, ErrEmptyPacket
	}

	var wp wirePacket
	if err := json.Unmarshal(data, &wp); err != nil {
		return MessagePacket{}, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if err := packetValidate.Struct(wp); err != nil {
		return MessagePacket{}, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	return MessagePacket{ID: wp.ID, Content: *wp.Content}, nil
}
