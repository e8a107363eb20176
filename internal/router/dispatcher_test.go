package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"roomhub/internal/mocks"
	"roomhub/internal/room"
	"roomhub/pkg/types"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	payloads []string
}

func (b *recordingBroadcaster) Broadcast(r *room.Room, payload []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, string(payload))
	return r.SessionCount()
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *recordingBroadcaster, *mocks.MockImageStore) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockImageStore(ctrl)
	broadcaster := &recordingBroadcaster{}
	return NewDispatcher(broadcaster, store, time.Second), broadcaster, store
}

func TestDispatcher_FocalPointUpdatesWithoutBroadcast(t *testing.T) {
	req := require.New(t)
	d, broadcaster, _ := newTestDispatcher(t)
	r := room.New("lobby", room.DefaultSettings())

	effect, err := d.Dispatch(context.Background(), r, TextFrame,
		[]byte(`{"type":"focal","position":{"x":10,"y":20},"bounds":{"x1":0,"y1":0,"x2":100,"y2":100}}`))

	req.NoError(err)
	req.Equal(FocalUpdated, effect)
	info := r.Info()
	req.Equal([2]float64{10, 20}, *info.FocalPoint)
	req.Equal([4]float64{0, 0, 100, 100}, *info.FocalRange)
	req.Empty(broadcaster.payloads)
}

func TestDispatcher_EntityUpsertBroadcastsStoredEntity(t *testing.T) {
	req := require.New(t)
	d, broadcaster, _ := newTestDispatcher(t)
	r := room.New("lobby", room.DefaultSettings())

	frame := `{"id":7,"name":"crate","x":1,"y":2,"z":3,"status":{"description":"ok","level":1,"is_active":true}}`
	effect, err := d.DispatchText(context.Background(), r, []byte(frame))

	req.NoError(err)
	req.Equal(EntityUpsert, effect)
	stored, ok := r.Entity(7)
	req.True(ok)
	req.Equal("crate", stored.Name)
	req.Len(broadcaster.payloads, 1)
	req.JSONEq(`{"id":7,"name":"crate","x":1,"y":2,"z":3,"status":{"description":"ok","level":1,"is_active":true},"image_id":null}`,
		broadcaster.payloads[0])
}

func TestDispatcher_ClassifiedText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		queued  bool
		relayed string
	}{
		{"error prefix is queued", "ERROR: disk full", true, `{"content":"ERROR: disk full"}`},
		{"plain text is relayed only", "hello", false, `{"content":"hello"}`},
		{"partial entity is free text", `{"id":1,"name":"x"}`, false, `{"content":"{\"id\":1,\"name\":\"x\"}"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			d, broadcaster, _ := newTestDispatcher(t)
			r := room.New("lobby", room.DefaultSettings())

			effect, err := d.DispatchText(context.Background(), r, []byte(tt.text))

			req.NoError(err)
			req.Equal(Relayed, effect)
			req.Len(broadcaster.payloads, 1)
			req.JSONEq(tt.relayed, broadcaster.payloads[0])
			if tt.queued {
				req.Equal([]types.ClassifiedMessage{{Content: tt.text}}, r.PendingMessages())
			} else {
				req.Empty(r.PendingMessages())
			}
		})
	}
}

func TestDispatcher_BinaryStoresAndBroadcastsReference(t *testing.T) {
	req := require.New(t)
	d, broadcaster, store := newTestDispatcher(t)
	r := room.New("lobby", room.DefaultSettings())
	data := []byte{0x89, 'P', 'N', 'G'}

	store.EXPECT().Store(gomock.Any(), data).Return("abc-123", nil)

	effect, err := d.Dispatch(context.Background(), r, BinaryFrame, data)

	req.NoError(err)
	req.Equal(ImageStored, effect)
	req.Equal([]string{`{"image_id":"abc-123"}`}, broadcaster.payloads)
}

func TestDispatcher_BinaryStorageFailure(t *testing.T) {
	req := require.New(t)
	d, broadcaster, store := newTestDispatcher(t)
	r := room.New("lobby", room.DefaultSettings())
	diskFull := errors.New("disk full")

	store.EXPECT().Store(gomock.Any(), gomock.Any()).Return("", diskFull)

	effect, err := d.DispatchBinary(context.Background(), r, []byte("blob"))

	req.Equal(Ignored, effect)
	req.ErrorIs(err, ErrStorageFailure)
	req.ErrorIs(err, diskFull)
	req.Empty(broadcaster.payloads)
}

func TestDispatcher_NoStoreConfigured(t *testing.T) {
	d := NewDispatcher(&recordingBroadcaster{}, nil, 0)
	_, err := d.DispatchBinary(context.Background(), room.New("lobby", room.DefaultSettings()), []byte("x"))
	require.ErrorIs(t, err, ErrStorageFailure)
}

func TestDispatcher_InvalidInput(t *testing.T) {
	req := require.New(t)
	d, _, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), nil, TextFrame, []byte("x"))
	req.ErrorIs(err, ErrNilRoom)

	_, err = d.Dispatch(context.Background(), room.New("lobby", room.DefaultSettings()), FrameKind(9), []byte("x"))
	req.ErrorIs(err, ErrUnknownFrameKind)
}

func TestEffect_String(t *testing.T) {
	require.Equal(t, "focal_updated", FocalUpdated.String())
	require.Equal(t, "image_stored", ImageStored.String())
	require.Equal(t, "ignored", Effect(42).String())
}
