package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"roomhub/internal/mocks"
	"roomhub/internal/room"
	"roomhub/pkg/types"
)

type staticStats map[string]int64

func (s staticStats) GetStats() map[string]int64 { return s }

const crateBody = `{"id":7,"name":"crate","x":1,"y":2,"z":3,"status":{"description":"ok","level":1,"is_active":true}}`

func newTestServer(t *testing.T) (*Server, *room.Registry, *mocks.MockImageStore) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockImageStore(ctrl)
	registry := room.NewRegistry(room.DefaultSettings())
	return NewServer(registry, store, staticStats{"delivered": 3, "pruned": 1}), registry, store
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestServer_EntityLifecycle(t *testing.T) {
	req := require.New(t)
	s, registry, _ := newTestServer(t)
	lobby := registry.GetOrCreate("lobby")
	arena := registry.GetOrCreate("arena")

	rec := do(s, http.MethodPost, "/api/entities", crateBody)
	req.Equal(http.StatusCreated, rec.Code)
	req.Equal("application/json", rec.Header().Get("Content-Type"))
	req.Equal(1, lobby.EntityCount())
	req.Equal(1, arena.EntityCount())

	rec = do(s, http.MethodGet, "/api/entities", "")
	req.Equal(http.StatusOK, rec.Code)
	var entities []types.Entity
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &entities))
	req.Len(entities, 2)

	rec = do(s, http.MethodGet, "/api/entities/7", "")
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"id":7,"name":"crate","x":1,"y":2,"z":3,"status":{"description":"ok","level":1,"is_active":true},"image_id":null}`,
		rec.Body.String())

	rec = do(s, http.MethodPut, "/api/entities/7", strings.Replace(crateBody, "crate", "barrel", 1))
	req.Equal(http.StatusOK, rec.Code)

	rec = do(s, http.MethodDelete, "/api/entities/7", "")
	req.Equal(http.StatusNoContent, rec.Code)
	rec = do(s, http.MethodDelete, "/api/entities/7", "")
	req.Equal(http.StatusNoContent, rec.Code)
	rec = do(s, http.MethodDelete, "/api/entities/7", "")
	req.Equal(http.StatusNotFound, rec.Code)
}

func TestServer_EntityErrors(t *testing.T) {
	s, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		code   int
	}{
		{"unknown id", http.MethodGet, "/api/entities/404", "", http.StatusNotFound},
		{"non numeric id", http.MethodGet, "/api/entities/abc", "", http.StatusBadRequest},
		{"partial body", http.MethodPost, "/api/entities", `{"id":1}`, http.StatusBadRequest},
		{"update unknown id", http.MethodPut, "/api/entities/404", crateBody, http.StatusNotFound},
		{"delete unknown id", http.MethodDelete, "/api/entities/404", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, tt.method, tt.target, tt.body)
			require.Equal(t, tt.code, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestServer_UpdateKeepsPathID(t *testing.T) {
	req := require.New(t)
	s, registry, _ := newTestServer(t)
	lobby := registry.GetOrCreate("lobby")
	lobby.UpsertEntity(types.Entity{ID: 7, Name: "crate"})

	rec := do(s, http.MethodPut, "/api/entities/7", strings.Replace(crateBody, `"id":7`, `"id":99`, 1))
	req.Equal(http.StatusOK, rec.Code)

	stored, ok := lobby.Entity(7)
	req.True(ok)
	req.Equal(int64(99), stored.ID)
	_, ok = lobby.Entity(99)
	req.False(ok)
}

func TestServer_Rooms(t *testing.T) {
	req := require.New(t)
	s, registry, _ := newTestServer(t)
	lobby := registry.GetOrCreate("lobby")
	registry.GetOrCreate("arena")
	lobby.UpdateFocal(types.Position{X: 10, Y: 20}, types.Bounds{X2: 100, Y2: 100})

	rec := do(s, http.MethodGet, "/api/rooms", "")
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`["arena","lobby"]`, rec.Body.String())

	rec = do(s, http.MethodGet, "/api/rooms/lobby", "")
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"path":"lobby","active_sessions":0,"room_info":{"width":800,"height":600,"active_sessions":0,"focal_point":[10,20],"focal_range":[0,0,100,100]}}`,
		rec.Body.String())

	rec = do(s, http.MethodGet, "/api/rooms/missing", "")
	req.Equal(http.StatusNotFound, rec.Code)
}

func TestServer_Health(t *testing.T) {
	t.Run("healthy store", func(t *testing.T) {
		req := require.New(t)
		s, registry, store := newTestServer(t)
		registry.GetOrCreate("lobby")
		store.EXPECT().HealthCheck(gomock.Any()).Return(nil)

		rec := do(s, http.MethodGet, "/health", "")
		req.Equal(http.StatusOK, rec.Code)

		var resp HealthResponse
		req.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		req.Equal("healthy", resp.Status)
		req.Equal(1, resp.Rooms["active_rooms"])
		req.Equal(int64(3), resp.Fanout["delivered"])
		req.Contains(resp.System, "goroutines")
	})

	t.Run("failing store", func(t *testing.T) {
		req := require.New(t)
		s, _, store := newTestServer(t)
		store.EXPECT().HealthCheck(gomock.Any()).Return(errors.New("disk gone"))

		rec := do(s, http.MethodGet, "/health", "")
		req.Equal(http.StatusServiceUnavailable, rec.Code)
		req.Contains(rec.Body.String(), "disk gone")
	})
}

func TestServer_CORSPreflight(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(s, http.MethodOptions, "/api/entities", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
