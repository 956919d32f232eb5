package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plasmastore/plasmastore/internal/allocator"
	"github.com/plasmastore/plasmastore/internal/lifecycle"
	"github.com/plasmastore/plasmastore/internal/store"
	"github.com/plasmastore/plasmastore/pkg/types"
)

func newTestManager(t *testing.T, limit int64, config store.Config) *lifecycle.Manager {
	t.Helper()
	m := lifecycle.NewManager(allocator.NewHeapAllocator(limit), config, nil)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func sealedObject(t *testing.T, m *lifecycle.Manager, size int64) types.ObjectID {
	t.Helper()
	id := types.NewObjectID()
	buf, res := m.CreateAndGetBuffer(types.ObjectInfo{ID: id, DataSize: size}, types.CreatedByWorker, true)
	require.True(t, res.Success, res.String())
	for i := range buf {
		buf[i] = byte(i)
	}
	require.True(t, m.SealObject(id).Success)
	return id
}

func serve(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	}
	return w, body
}

func TestNewServer(t *testing.T) {
	m := newTestManager(t, 1024, store.Config{})
	server := NewServer(DefaultServerConfig(), m, nil)

	require.NotNil(t, server)
	assert.NotNil(t, server.httpServer)
	assert.Equal(t, "127.0.0.1:8090", server.httpServer.Addr)
	assert.Contains(t, server.endpoints, "GET /objects/{id}")
}

func TestHandleHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		m := newTestManager(t, 1024, store.Config{})
		sealedObject(t, m, 100)

		w, body := serve(t, NewServer(DefaultServerConfig(), m, nil), "/health")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, float64(1), body["objects"])
	})

	t.Run("degraded while spilling to fallback", func(t *testing.T) {
		m := newTestManager(t, 128, store.Config{FallbackEnabled: true})
		sealedObject(t, m, 128)
		m.GetObject(sealedObject(t, m, 64)) // lands in fallback

		w, body := serve(t, NewServer(DefaultServerConfig(), m, nil), "/health")
		assert.Equal(t, http.StatusPartialContent, w.Code)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, float64(64), body["fallback_bytes"])
	})
}

func TestHandleLiveness(t *testing.T) {
	m := newTestManager(t, 1024, store.Config{})
	w, body := serve(t, NewServer(DefaultServerConfig(), m, nil), "/health/live")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["alive"])
	assert.NotEmpty(t, body["uptime"])
}

func TestHandleStats(t *testing.T) {
	m := newTestManager(t, 1024, store.Config{})
	sealedObject(t, m, 100)
	sealedObject(t, m, 200)

	w := httptest.NewRecorder()
	NewServer(DefaultServerConfig(), m, nil).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var report lifecycle.Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.Equal(t, int64(2), report.Objects.NumObjects)
	assert.Equal(t, int64(300), report.BytesUsed)
	assert.Equal(t, int64(1024), report.Capacity)
	assert.Equal(t, 2, report.Cache.Entries)
}

func TestHandleObjects(t *testing.T) {
	m := newTestManager(t, 4096, store.Config{})
	for i := 0; i < 5; i++ {
		sealedObject(t, m, 10)
	}
	s := NewServer(DefaultServerConfig(), m, nil)

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantCount float64
	}{
		{"default limit", "/objects", http.StatusOK, 5},
		{"custom limit", "/objects?limit=2", http.StatusOK, 2},
		{"zero limit", "/objects?limit=0", http.StatusOK, 0},
		{"bad limit", "/objects?limit=abc", http.StatusBadRequest, 0},
		{"negative limit", "/objects?limit=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := serve(t, s, tt.path)
			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode != http.StatusOK {
				assert.Contains(t, body, "error")
				return
			}
			assert.Equal(t, tt.wantCount, body["count"])
			assert.Equal(t, float64(5), body["total"])
		})
	}
}

func TestHandleObject(t *testing.T) {
	m := newTestManager(t, 1024, store.Config{ChecksumOnSeal: true})
	id := sealedObject(t, m, 100)
	pending := types.NewObjectID()
	require.True(t, m.CreateObject(types.ObjectInfo{ID: pending, DataSize: 8, OwnerAddress: []byte{0xab}}, types.RestoredFromStorage, false).Success)
	s := NewServer(DefaultServerConfig(), m, nil)

	t.Run("sealed", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/objects/"+id.Hex(), nil))
		require.Equal(t, http.StatusOK, w.Code)

		var obj ObjectResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&obj))
		assert.Equal(t, id.Hex(), obj.ID)
		assert.Equal(t, int64(100), obj.DataSize)
		assert.Equal(t, "sealed", obj.State)
		assert.Equal(t, "created_by_worker", obj.Source)
		assert.NotEmpty(t, obj.Checksum)
		assert.NotEmpty(t, obj.ConstructionTime)
	})

	t.Run("unsealed", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/objects/"+pending.Hex(), nil))
		require.Equal(t, http.StatusOK, w.Code)

		var obj ObjectResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&obj))
		assert.Equal(t, "created", obj.State)
		assert.Equal(t, "ab", obj.OwnerAddress)
		assert.Empty(t, obj.ConstructionTime)
	})

	t.Run("missing", func(t *testing.T) {
		w, body := serve(t, s, "/objects/"+types.NewObjectID().Hex())
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "OBJECT_NOT_FOUND", body["code"])
		assert.Equal(t, false, body["success"])
	})

	t.Run("malformed id", func(t *testing.T) {
		w, body := serve(t, s, "/objects/not-hex")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, body, "error")
	})
}

func TestHandleVerify(t *testing.T) {
	m := newTestManager(t, 1024, store.Config{ChecksumOnSeal: true})
	id := sealedObject(t, m, 100)
	unsealed := types.NewObjectID()
	require.True(t, m.CreateObject(types.ObjectInfo{ID: unsealed, DataSize: 8}, types.CreatedByWorker, false).Success)
	s := NewServer(DefaultServerConfig(), m, nil)

	w, body := serve(t, s, "/objects/"+id.Hex()+"/verify")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	w, body = serve(t, s, "/objects/"+unsealed.Hex()+"/verify")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "OBJECT_NOT_SEALED", body["code"])

	w, _ = serve(t, s, "/objects/"+types.NewObjectID().Hex()+"/verify")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleEviction(t *testing.T) {
	m := newTestManager(t, 1024, store.Config{})
	first := sealedObject(t, m, 10)
	second := sealedObject(t, m, 10)
	_, res := m.GetObject(second)
	require.True(t, res.Success)

	w, body := serve(t, NewServer(DefaultServerConfig(), m, nil), "/eviction")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{first.Hex()}, body["candidates"])
}

func TestHandleInfo(t *testing.T) {
	m := newTestManager(t, 1024, store.Config{})
	s := NewServer(DefaultServerConfig(), m, nil)
	s.Handle("/metrics", http.NotFoundHandler())

	w, body := serve(t, s, "/info")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "plasma-store", body["service"])
	assert.Contains(t, body["endpoints"], "/metrics")
}

func TestRequestID(t *testing.T) {
	m := newTestManager(t, 1024, store.Config{})
	s := NewServer(DefaultServerConfig(), m, nil)

	w, _ := serve(t, s, "/health/live")
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "caller-id", w.Header().Get(RequestIDHeader))
}

func TestCORSMiddleware(t *testing.T) {
	m := newTestManager(t, 1024, store.Config{})
	config := DefaultServerConfig()
	config.EnableCORS = true
	s := NewServer(config, m, nil)

	req := httptest.NewRequest(http.MethodOptions, "/stats", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}

func TestMethodNotAllowed(t *testing.T) {
	m := newTestManager(t, 1024, store.Config{})
	s := NewServer(DefaultServerConfig(), m, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServerStartShutdown(t *testing.T) {
	m := newTestManager(t, 1024, store.Config{})
	config := DefaultServerConfig()
	config.Address = "127.0.0.1:0"
	s := NewServer(config, m, nil)

	s.StartBackground()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
