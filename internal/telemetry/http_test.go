package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/Umesh0245/smartfleet1/internal/cache"
)

func newTestRouter(store Store, c cache.Cache) (*mux.Router, *Reconciler) {
	rec := NewReconciler(store, c, nil)
	h := NewHTTPHandler(rec, store, c, nil, nil)
	r := mux.NewRouter()
	h.Register(r)
	return r, rec
}

func doRequest(t *testing.T, r *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIngestEndpoint(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestRouter(store, cache.NewMemory())

	w := doRequest(t, r, http.MethodPost, "/api/telemetry/ingest",
		`{"vehicleId":"V1","timestamp":"T1","signals":{"speed":60}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	stored, ok := store.snapshot("V1")
	if !ok || stored.Signals["speed"] != float64(60) {
		t.Fatalf("snapshot not stored via http: %v", stored)
	}
}

func TestIngestEndpointRejectsBadPayload(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestRouter(store, cache.NewMemory())

	w := doRequest(t, r, http.MethodPost, "/api/telemetry/ingest", `{"timestamp":"T1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if store.upserts != 0 {
		t.Fatalf("rejected payload must not be persisted")
	}
}

func TestIngestEndpointStoreUnavailable(t *testing.T) {
	store := newFakeStore()
	store.failing = true
	r, _ := newTestRouter(store, cache.Noop{})

	w := doRequest(t, r, http.MethodPost, "/api/telemetry/ingest",
		`{"vehicleId":"V1","timestamp":"T1"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

// 同一份字节载荷，HTTP 入口和总线入口必须产生完全相同的存储状态。
func TestCrossChannelConvergence(t *testing.T) {
	raw := `{"vehicleId":"V1","timestamp":"T1","specs":{"make":"Scania"},"signals":{"speed":60},"status":{"moving":true}}`

	httpStore := newFakeStore()
	r, _ := newTestRouter(httpStore, cache.NewMemory())
	if w := doRequest(t, r, http.MethodPost, "/api/telemetry/ingest", raw); w.Code != http.StatusOK {
		t.Fatalf("http ingest failed: %d", w.Code)
	}

	busStore := newFakeStore()
	busRec := NewReconciler(busStore, cache.NewMemory(), nil)
	consumer := NewConsumer(nil, busRec, nil, "smartfleet-group", "fleet/telemetry", 1, 4)
	consumer.HandleMessage(context.Background(), "fleet/telemetry", []byte(raw))

	viaHTTP, ok1 := httpStore.snapshot("V1")
	viaBus, ok2 := busStore.snapshot("V1")
	if !ok1 || !ok2 {
		t.Fatalf("snapshot missing: http=%v bus=%v", ok1, ok2)
	}
	if !reflect.DeepEqual(viaHTTP, viaBus) {
		t.Fatalf("channels diverged:\n http=%#v\n bus=%#v", viaHTTP, viaBus)
	}
}

func TestGetByVehicleNotFound(t *testing.T) {
	r, _ := newTestRouter(newFakeStore(), cache.NewMemory())
	w := doRequest(t, r, http.MethodGet, "/api/telemetry/vehicle/UNKNOWN", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetByVehicleReadThrough(t *testing.T) {
	store := newFakeStore()
	c := cache.NewMemory()
	r, _ := newTestRouter(store, c)
	ctx := context.Background()

	if w := doRequest(t, r, http.MethodPost, "/api/telemetry/ingest",
		`{"vehicleId":"V1","timestamp":"T1","signals":{"speed":60}}`); w.Code != http.StatusOK {
		t.Fatalf("ingest failed: %d", w.Code)
	}

	// 第一次读：miss -> 回源 -> 回填缓存
	w := doRequest(t, r, http.MethodGet, "/api/telemetry/vehicle/V1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, ok := c.Get(ctx, cache.VehicleKey("V1")); !ok {
		t.Fatalf("read-through did not populate the cache")
	}

	var snap Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if snap.Signals["speed"] != float64(60) {
		t.Fatalf("unexpected response: %v", snap.Signals)
	}

	// 第二次读：命中缓存，响应内容一致
	w2 := doRequest(t, r, http.MethodGet, "/api/telemetry/vehicle/V1", "")
	if w2.Code != http.StatusOK || w2.Body.String() != w.Body.String() {
		t.Fatalf("cached read diverged from store read")
	}
}

// 缓存关闭与否，读结果必须一致（只差延迟）。
func TestReadsIdenticalWithAndWithoutCache(t *testing.T) {
	raw := `{"vehicleId":"V1","timestamp":"T1","signals":{"speed":60}}`

	cachedStore := newFakeStore()
	cachedRouter, _ := newTestRouter(cachedStore, cache.NewMemory())
	doRequest(t, cachedRouter, http.MethodPost, "/api/telemetry/ingest", raw)

	plainStore := newFakeStore()
	plainRouter, _ := newTestRouter(plainStore, cache.Noop{})
	doRequest(t, plainRouter, http.MethodPost, "/api/telemetry/ingest", raw)

	w1 := doRequest(t, cachedRouter, http.MethodGet, "/api/telemetry/vehicle/V1", "")
	w2 := doRequest(t, plainRouter, http.MethodGet, "/api/telemetry/vehicle/V1", "")
	if w1.Code != http.StatusOK || w2.Code != http.StatusOK {
		t.Fatalf("unexpected codes: %d / %d", w1.Code, w2.Code)
	}

	var s1, s2 Snapshot
	if err := json.Unmarshal(w1.Body.Bytes(), &s1); err != nil {
		t.Fatalf("unmarshal cached: %v", err)
	}
	if err := json.Unmarshal(w2.Body.Bytes(), &s2); err != nil {
		t.Fatalf("unmarshal plain: %v", err)
	}
	if !reflect.DeepEqual(s1, s2) {
		t.Fatalf("cache changed read result:\n cached=%#v\n plain=%#v", s1, s2)
	}
}

func TestListEndpoints(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestRouter(store, cache.NewMemory())

	doRequest(t, r, http.MethodPost, "/api/telemetry/ingest", `{"vehicleId":"V1","timestamp":"T1"}`)
	doRequest(t, r, http.MethodPost, "/api/telemetry/ingest", `{"vehicleId":"V2","timestamp":"T2"}`)

	for _, path := range []string{"/api/telemetry", "/api/telemetry/latest"} {
		w := doRequest(t, r, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		var snaps []Snapshot
		if err := json.Unmarshal(w.Body.Bytes(), &snaps); err != nil {
			t.Fatalf("%s: unmarshal: %v", path, err)
		}
		// 当前状态表：latest 与全量等价
		if len(snaps) != 2 {
			t.Fatalf("%s: expected 2 snapshots, got %d", path, len(snaps))
		}
	}
}

func TestFleetMetricsEndpoint(t *testing.T) {
	store := newFakeStore()
	c := cache.NewMemory()
	r, _ := newTestRouter(store, c)
	ctx := context.Background()

	doRequest(t, r, http.MethodPost, "/api/telemetry/ingest",
		`{"vehicleId":"V1","timestamp":"T1","signals":{"speed":60},"status":{"moving":true}}`)
	doRequest(t, r, http.MethodPost, "/api/telemetry/ingest",
		`{"vehicleId":"V2","timestamp":"T1","signals":{"speed":40}}`)

	w := doRequest(t, r, http.MethodGet, "/api/fleet/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var m FleetMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal metrics: %v", err)
	}
	if m.TotalVehicles != 2 || m.MovingVehicles != 1 || m.AverageSpeed != 50 || m.MaxSpeed != 60 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if _, ok := c.Get(ctx, cache.FleetMetricsKey); !ok {
		t.Fatalf("fleet metrics not cached")
	}

	// 新遥测到达后指标缓存被失效，下一次读反映新状态
	doRequest(t, r, http.MethodPost, "/api/telemetry/ingest",
		`{"vehicleId":"V3","timestamp":"T2","signals":{"speed":80}}`)
	w2 := doRequest(t, r, http.MethodGet, "/api/fleet/metrics", "")
	var m2 FleetMetrics
	if err := json.Unmarshal(w2.Body.Bytes(), &m2); err != nil {
		t.Fatalf("unmarshal metrics: %v", err)
	}
	if m2.TotalVehicles != 3 || m2.MaxSpeed != 80 {
		t.Fatalf("stale metrics served after ingest: %+v", m2)
	}
}

func TestIngestEndpointRateLimited(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, cache.Noop{}, nil)
	h := NewHTTPHandler(rec, store, cache.Noop{}, nil, denyAll{})
	r := mux.NewRouter()
	h.Register(r)

	w := doRequest(t, r, http.MethodPost, "/api/telemetry/ingest",
		`{"vehicleId":"V1","timestamp":"T1"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if store.upserts != 0 {
		t.Fatalf("rate limited request must not be persisted")
	}
}

type denyAll struct{}

func (denyAll) Allow(ctx context.Context) bool { return false }
