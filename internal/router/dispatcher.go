package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"roomhub/internal/room"
	"roomhub/pkg/interfaces"
	"roomhub/pkg/types"
)

// Effect names what a dispatched frame did to its room
type Effect int

const (
	Ignored Effect = iota
	FocalUpdated
	EntityUpsert
	Relayed
	ImageStored
)

func (e Effect) String() string {
	switch e {
	case FocalUpdated:
		return "focal_updated"
	case EntityUpsert:
		return "entity_upsert"
	case Relayed:
		return "relayed"
	case ImageStored:
		return "image_stored"
	default:
		return "ignored"
	}
}

// FrameKind is the data frame type handed to Dispatch
type FrameKind int

const (
	TextFrame FrameKind = iota
	BinaryFrame
)

// Broadcaster delivers a serialized payload to every session in a room
type Broadcaster interface {
	Broadcast(r *room.Room, payload []byte) int
}

// Dispatcher classifies inbound frames and applies their effect to a room
// ARCHITECTURAL DISCOVERY: The dispatcher holds no per-room state. Everything it
// mutates lives on the *room.Room passed in, so one dispatcher serves all rooms
// and every session goroutine concurrently.
type Dispatcher struct {
	broadcaster  Broadcaster
	store        interfaces.ImageStore
	storeTimeout time.Duration
}

// NewDispatcher creates a dispatcher
// FUNCTIONAL DISCOVERY: Dependency injection enables testing with mock components
func NewDispatcher(broadcaster Broadcaster, store interfaces.ImageStore, storeTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		broadcaster:  broadcaster,
		store:        store,
		storeTimeout: storeTimeout,
	}
}

// Dispatch routes one data frame by kind
func (d *Dispatcher) Dispatch(ctx context.Context, r *room.Room, kind FrameKind, data []byte) (Effect, error) {
	if r == nil {
		return Ignored, ErrNilRoom
	}
	switch kind {
	case TextFrame:
		return d.DispatchText(ctx, r, data)
	case BinaryFrame:
		return d.DispatchBinary(ctx, r, data)
	default:
		return Ignored, ErrUnknownFrameKind
	}
}

// DispatchText applies the first schema the text decodes as
// FUNCTIONAL DISCOVERY: Order is focal point, then entity, then free text. A
// decode mismatch only means "try the next schema".
func (d *Dispatcher) DispatchText(ctx context.Context, r *room.Room, data []byte) (Effect, error) {
	logger := log.With().Str("module", "router").Str("room", r.Path()).Logger()

	if focal, err := types.DecodeFocalPoint(data); err == nil {
		r.UpdateFocal(focal.Position, focal.Bounds)
		// Focal moves are recorded but not relayed
		logger.Info().
			Float64("x", focal.Position.X).
			Float64("y", focal.Position.Y).
			Msg("focal point updated")
		return FocalUpdated, nil
	} else if !errors.Is(err, types.ErrDecodeMismatch) {
		return Ignored, err
	}

	if entity, err := types.DecodeEntity(data); err == nil {
		r.UpsertEntity(*entity)
		payload, err := json.Marshal(entity)
		if err != nil {
			return EntityUpsert, fmt.Errorf("failed to encode entity %d: %w", entity.ID, err)
		}
		delivered := d.broadcaster.Broadcast(r, payload)
		logger.Debug().Int64("entity", entity.ID).Int("delivered", delivered).Msg("entity upserted")
		return EntityUpsert, nil
	} else if !errors.Is(err, types.ErrDecodeMismatch) {
		return Ignored, err
	}

	msg := types.ClassifiedMessage{Content: string(data)}
	if matches := r.Classify(msg.Content); len(matches) > 0 {
		r.EnqueuePending(msg)
		logger.Info().Ints("patterns", matches).Msg("classified message queued")
	} else {
		logger.Info().Msg("message matched no pattern")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return Relayed, fmt.Errorf("failed to encode message: %w", err)
	}
	d.broadcaster.Broadcast(r, payload)
	return Relayed, nil
}

// DispatchBinary persists the frame and broadcasts a reference to it
// FUNCTIONAL DISCOVERY: A storage failure aborts this frame only; the caller
// logs it and keeps the session open.
func (d *Dispatcher) DispatchBinary(ctx context.Context, r *room.Room, data []byte) (Effect, error) {
	if d.store == nil {
		return Ignored, fmt.Errorf("%w: no image store configured", ErrStorageFailure)
	}

	storeCtx := ctx
	if d.storeTimeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, d.storeTimeout)
		defer cancel()
	}

	id, err := d.store.Store(storeCtx, data)
	if err != nil {
		return Ignored, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	payload, err := json.Marshal(types.ImageReference{ImageID: id})
	if err != nil {
		return ImageStored, fmt.Errorf("failed to encode image reference: %w", err)
	}
	delivered := d.broadcaster.Broadcast(r, payload)
	log.Info().Str("module", "router").Str("room", r.Path()).Str("image", id).
		Int("bytes", len(data)).Int("delivered", delivered).Msg("image stored")
	return ImageStored, nil
}
