package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/require"

	"roomhub/internal/api"
	"roomhub/internal/hub"
	"roomhub/internal/room"
	"roomhub/pkg/types"
)

func newTestServer(t *testing.T) (*httptest.Server, *room.Registry) {
	t.Helper()
	color.Disable()

	registry := room.NewRegistry(room.DefaultSettings())
	server := httptest.NewServer(api.NewServer(registry, nil, hub.NewHub()))
	t.Cleanup(server.Close)
	return server, registry
}

func TestRun_Rooms(t *testing.T) {
	req := require.New(t)
	server, registry := newTestServer(t)
	registry.GetOrCreate("lobby")

	var out bytes.Buffer
	req.NoError(run([]string{"-addr", server.URL, "rooms"}, &out, server.Client()))
	req.Contains(out.String(), "lobby")
	req.Contains(out.String(), "1 active room(s)")
}

func TestRun_RoomDetail(t *testing.T) {
	req := require.New(t)
	server, registry := newTestServer(t)
	registry.GetOrCreate("lobby").UpdateFocal(types.Position{X: 10, Y: 20}, types.Bounds{X2: 100, Y2: 100})

	var out bytes.Buffer
	req.NoError(run([]string{"-addr", server.URL, "room", "lobby"}, &out, server.Client()))
	req.Contains(out.String(), "(10, 20)")
	req.Contains(out.String(), "(0, 0, 100, 100)")

	err := run([]string{"-addr", server.URL, "room", "missing"}, &out, server.Client())
	req.ErrorContains(err, "404")
}

func TestRun_Entities(t *testing.T) {
	req := require.New(t)
	server, registry := newTestServer(t)
	registry.GetOrCreate("lobby")
	registry.InsertEverywhere(types.Entity{ID: 7, Name: "crate", Status: types.Status{Description: "ok", IsActive: true}})

	var out bytes.Buffer
	req.NoError(run([]string{"-addr", server.URL, "entities"}, &out, server.Client()))
	req.Contains(out.String(), "crate")
	req.Contains(out.String(), "yes")
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"bogus"}, {"room"}, {"-nope"}} {
		require.ErrorIs(t, run(args, &bytes.Buffer{}, http.DefaultClient), errUsage)
	}
}
