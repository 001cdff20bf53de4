package telemetry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Umesh0245/smartfleet1/internal/cache"
)

// fakeStore 进程内 Store 实现，用于不依赖 MySQL 的单元测试。
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]Snapshot
	upserts int
	failing bool // 模拟持久层不可用
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]Snapshot)}
}

func (s *fakeStore) Upsert(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return &TransientStoreError{Op: "upsert", Err: errors.New("store down")}
	}
	s.upserts++
	s.rows[snap.VehicleID] = *snap
	return nil
}

func (s *fakeStore) GetByVehicleID(ctx context.Context, vehicleID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, &TransientStoreError{Op: "get", Err: errors.New("store down")}
	}
	row, ok := s.rows[vehicleID]
	if !ok {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (s *fakeStore) ListAll(ctx context.Context) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, &TransientStoreError{Op: "list", Err: errors.New("store down")}
	}
	out := make([]Snapshot, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	return out, nil
}

func (s *fakeStore) snapshot(vehicleID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[vehicleID]
	return row, ok
}

func TestIngestFirstSeen(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, cache.NewMemory(), nil)

	raw := []byte(`{"vehicleId":"V1","timestamp":"T1","signals":{"speed":60}}`)
	res, err := rec.Ingest(context.Background(), raw, SourceHTTP)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.VehicleID != "V1" || !res.FirstSeen {
		t.Fatalf("unexpected result: %+v", res)
	}

	stored, ok := store.snapshot("V1")
	if !ok {
		t.Fatalf("snapshot not stored")
	}
	if stored.Signals["speed"] != float64(60) {
		t.Fatalf("unexpected stored signals: %v", stored.Signals)
	}
}

func TestIngestIdempotent(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, cache.Noop{}, nil)

	raw := []byte(`{"vehicleId":"V1","timestamp":"T1","signals":{"speed":60},"status":{"moving":true}}`)
	if _, err := rec.Ingest(context.Background(), raw, SourceHTTP); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	first, _ := store.snapshot("V1")

	if _, err := rec.Ingest(context.Background(), raw, SourceMQTT); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	second, _ := store.snapshot("V1")

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("ingest is not idempotent:\n first=%#v\n second=%#v", first, second)
	}
}

// 整条记录 latest-wins：后到的载荷完整覆盖，即使它带的时间戳更早。
func TestIngestWholeRecordReplaceIgnoresTimestamp(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, cache.NewMemory(), nil)
	ctx := context.Background()

	newer := []byte(`{"vehicleId":"V1","timestamp":"T1","specs":{"make":"Scania"},"signals":{"speed":60,"fuel":0.8}}`)
	if _, err := rec.Ingest(ctx, newer, SourceHTTP); err != nil {
		t.Fatalf("ingest newer: %v", err)
	}

	// 时间戳更早、字段更少的载荷后到
	older := []byte(`{"vehicleId":"V1","timestamp":"T0","signals":{"speed":45}}`)
	res, err := rec.Ingest(ctx, older, SourceHTTP)
	if err != nil {
		t.Fatalf("ingest older: %v", err)
	}
	if res.FirstSeen {
		t.Fatalf("expected existing vehicle")
	}

	stored, _ := store.snapshot("V1")
	if stored.Timestamp != "T0" {
		t.Fatalf("expected last writer to win, got timestamp %s", stored.Timestamp)
	}
	if stored.Signals["speed"] != float64(45) {
		t.Fatalf("expected speed 45, got %v", stored.Signals["speed"])
	}
	// 不能从旧快照拼接字段
	if _, ok := stored.Signals["fuel"]; ok {
		t.Fatalf("field spliced from previous snapshot: %v", stored.Signals)
	}
	if len(stored.Specs) != 0 {
		t.Fatalf("specs spliced from previous snapshot: %v", stored.Specs)
	}
}

func TestIngestRejectsWithoutMutation(t *testing.T) {
	store := newFakeStore()
	c := cache.NewMemory()
	c.Set(context.Background(), cache.FleetMetricsKey, []byte("{}"), time.Minute)
	rec := NewReconciler(store, c, nil)

	_, err := rec.Ingest(context.Background(), []byte(`{"timestamp":"T1"}`), SourceHTTP)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if store.upserts != 0 {
		t.Fatalf("rejected payload must not be persisted")
	}
	// 拒绝的载荷也不触发缓存失效
	if _, ok := c.Get(context.Background(), cache.FleetMetricsKey); !ok {
		t.Fatalf("rejected payload must not touch the cache")
	}
}

func TestIngestPropagatesStoreError(t *testing.T) {
	store := newFakeStore()
	store.failing = true
	rec := NewReconciler(store, cache.Noop{}, nil)

	_, err := rec.Ingest(context.Background(), []byte(`{"vehicleId":"V1","timestamp":"T1"}`), SourceHTTP)
	var storeErr *TransientStoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *TransientStoreError, got %v", err)
	}
}

func TestIngestInvalidatesCache(t *testing.T) {
	store := newFakeStore()
	c := cache.NewMemory()
	ctx := context.Background()
	c.Set(ctx, cache.VehicleKey("V1"), []byte("stale"), time.Minute)
	c.Set(ctx, cache.FleetMetricsKey, []byte("stale"), time.Minute)

	rec := NewReconciler(store, c, nil)
	if _, err := rec.Ingest(ctx, []byte(`{"vehicleId":"V1","timestamp":"T1"}`), SourceHTTP); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if _, ok := c.Get(ctx, cache.VehicleKey("V1")); ok {
		t.Fatalf("vehicle cache entry not invalidated")
	}
	if _, ok := c.Get(ctx, cache.FleetMetricsKey); ok {
		t.Fatalf("fleet metrics cache entry not invalidated")
	}
}

// 缓存关闭（Noop）与缓存可用时，摄入结果必须一致。
func TestIngestSucceedsWithDisabledCache(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, cache.Noop{}, nil)

	res, err := rec.Ingest(context.Background(), []byte(`{"vehicleId":"V1","timestamp":"T1"}`), SourceHTTP)
	if err != nil {
		t.Fatalf("Ingest with disabled cache: %v", err)
	}
	if res.VehicleID != "V1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

// 同车并发摄入串行化：并发写完后存储里必须是某一次完整的载荷，不能出现拼接。
func TestIngestConcurrentSameVehicle(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, cache.NewMemory(), nil)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := []byte(fmt.Sprintf(`{"vehicleId":"V1","timestamp":"T%d","signals":{"seq":%d}}`, i, i))
			if _, err := rec.Ingest(ctx, raw, SourceHTTP); err != nil {
				t.Errorf("Ingest: %v", err)
			}
		}(i)
	}
	wg.Wait()

	stored, ok := store.snapshot("V1")
	if !ok {
		t.Fatalf("snapshot not stored")
	}
	seq, ok := stored.Signals["seq"].(float64)
	if !ok {
		t.Fatalf("unexpected stored signals: %v", stored.Signals)
	}
	// 存储结果必须自洽：timestamp 与 seq 来自同一次写入
	want := fmt.Sprintf("T%d", int(seq))
	if stored.Timestamp != want {
		t.Fatalf("stored snapshot is spliced: timestamp=%s signals=%v", stored.Timestamp, stored.Signals)
	}
	if store.upserts != n {
		t.Fatalf("expected %d upserts, got %d", n, store.upserts)
	}
}

func TestConsumerHandleMessage(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, cache.Noop{}, nil)
	consumer := NewConsumer(nil, rec, nil, "smartfleet-group", "fleet/telemetry", 1, 4)

	consumer.HandleMessage(context.Background(), "fleet/telemetry", []byte(`{"vehicleId":"V1","timestamp":"T1","signals":{"speed":60}}`))

	stored, ok := store.snapshot("V1")
	if !ok {
		t.Fatalf("message not ingested")
	}
	if stored.Signals["speed"] != float64(60) {
		t.Fatalf("unexpected stored signals: %v", stored.Signals)
	}

	// 毒消息：丢弃且不落库
	consumer.HandleMessage(context.Background(), "fleet/telemetry", []byte(`not json`))
	if len(store.rows) != 1 {
		t.Fatalf("malformed message must be dropped")
	}
}
