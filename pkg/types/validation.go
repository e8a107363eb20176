package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FUNCTIONAL DISCOVERY: encoding/json silently zero-fills missing fields, so every
// schema is decoded into a pointer-shaped wire struct and presence is enforced by
// the validator. A payload either decodes completely or is not that kind.
var validate = validator.New(validator.WithRequiredStructEnabled())

type positionWire struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

type boundsWire struct {
	X1 *float64 `json:"x1" validate:"required"`
	Y1 *float64 `json:"y1" validate:"required"`
	X2 *float64 `json:"x2" validate:"required"`
	Y2 *float64 `json:"y2" validate:"required"`
}

type focalPointWire struct {
	Type     *string       `json:"type" validate:"required"`
	Position *positionWire `json:"position" validate:"required"`
	Bounds   *boundsWire   `json:"bounds" validate:"required"`
}

type statusWire struct {
	Description *string `json:"description" validate:"required"`
	Level       *int64  `json:"level" validate:"required"`
	IsActive    *bool   `json:"is_active" validate:"required"`
}

type entityWire struct {
	ID      *int64      `json:"id" validate:"required"`
	Name    *string     `json:"name" validate:"required"`
	X       *float64    `json:"x" validate:"required"`
	Y       *float64    `json:"y" validate:"required"`
	Z       *float64    `json:"z" validate:"required"`
	Status  *statusWire `json:"status" validate:"required"`
	ImageID *string     `json:"image_id"`
}

// DecodeFocalPoint decodes a focal-point update or reports ErrDecodeMismatch
func DecodeFocalPoint(data []byte) (*FocalPointMessage, error) {
	var wire focalPointWire
	if err := decodeStrict(data, &wire); err != nil {
		return nil, err
	}

	return &FocalPointMessage{
		Type: *wire.Type,
		Position: Position{
			X: *wire.Position.X,
			Y: *wire.Position.Y,
		},
		Bounds: Bounds{
			X1: *wire.Bounds.X1,
			Y1: *wire.Bounds.Y1,
			X2: *wire.Bounds.X2,
			Y2: *wire.Bounds.Y2,
		},
	}, nil
}

// DecodeEntity decodes an entity record or reports ErrDecodeMismatch
// image_id is the only optional field; null and absent are equivalent
func DecodeEntity(data []byte) (*Entity, error) {
	var wire entityWire
	if err := decodeStrict(data, &wire); err != nil {
		return nil, err
	}

	return &Entity{
		ID:   *wire.ID,
		Name: *wire.Name,
		X:    *wire.X,
		Y:    *wire.Y,
		Z:    *wire.Z,
		Status: Status{
			Description: *wire.Status.Description,
			Level:       *wire.Status.Level,
			IsActive:    *wire.Status.IsActive,
		},
		ImageID: wire.ImageID,
	}, nil
}

func decodeStrict(data []byte, wire interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %w", ErrDecodeMismatch, ErrEmptyPayload)
	}
	if err := json.Unmarshal(data, wire); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeMismatch, err)
	}
	if err := validate.Struct(wire); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeMismatch, err)
	}
	return nil
}

// IsValidRoomPath checks the path segment a client supplies on connect
// FUNCTIONAL DISCOVERY: Room paths are opaque namespaces; only emptiness, length
// and nested separators are rejected
func IsValidRoomPath(path string) bool {
	if len(path) < 1 || len(path) > 200 {
		return false
	}
	return !strings.Contains(path, "/")
}
