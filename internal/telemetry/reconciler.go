package telemetry

import (
	"context"
	"fmt"
	"sync"

	"github.com/opentracing/opentracing-go"

	"github.com/Umesh0245/smartfleet1/internal/cache"
	"github.com/Umesh0245/smartfleet1/internal/common/logger"
)

// 上报来源渠道。两个渠道走完全相同的 Ingest，同样的输入必须产生同样的结果。
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// IngestResult 一次成功摄入的结果。
type IngestResult struct {
	VehicleID string `json:"vehicleId"`
	Source    string `json:"source"`
	FirstSeen bool   `json:"firstSeen"` // 该车首次上报
}

// Reconciler 遥测摄入核心：解码 -> 按车加锁 -> 整行替换入库 -> 缓存失效。
//
// 合并策略是明确的整条记录 latest-wins：谁后经过 Reconciler 谁赢，
// 与载荷里的 timestamp 无关——上报时间戳由设备自填，不可信，不参与排序。
// 这是有意为之的策略，不是实现偷懒。
type Reconciler struct {
	store Store
	cache cache.Cache
	log   logger.Logger

	// 每个 vehicle id 一把锁：同车并发摄入串行化，保证 latest-wins 有明确的赢家；
	// 不同车完全并行。锁表只增不减，车队规模（千级）下内存可忽略。
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewReconciler 创建 Reconciler。store 必填；cache 可传 cache.Noop{} 表示关闭。
func NewReconciler(store Store, c cache.Cache, log logger.Logger) *Reconciler {
	if c == nil {
		c = cache.Noop{}
	}
	return &Reconciler{
		store: store,
		cache: c,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// Ingest 摄入一条原始遥测载荷。
//
// 错误语义：
// - *DecodeError：输入不合法，未发生任何持久化/缓存变更
// - *TransientStoreError：持久层故障，可安全整体重试（幂等）
// - 缓存失效失败不会让 Ingest 失败，只记日志
func (r *Reconciler) Ingest(ctx context.Context, raw []byte, source string) (*IngestResult, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("reconciler not initialized")
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "telemetry.ingest")
	defer span.Finish()
	span.SetTag("source", source)

	snap, err := Decode(raw)
	if err != nil {
		// 解码失败是终态：不落库、不动缓存
		span.SetTag("error", true)
		return nil, err
	}
	span.SetTag("vehicle_id", snap.VehicleID)

	lock := r.lockFor(snap.VehicleID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.store.GetByVehicleID(ctx, snap.VehicleID)
	if err != nil {
		span.SetTag("error", true)
		return nil, err
	}
	firstSeen := existing == nil

	// 整行替换：不存在则新建，存在则完整覆盖（不做字段级拼接）
	if err := r.store.Upsert(ctx, snap); err != nil {
		span.SetTag("error", true)
		return nil, err
	}

	// 缓存只失效、不回填；下一次读回源重算。失败不影响摄入结果。
	r.cache.Invalidate(ctx, cache.VehicleKey(snap.VehicleID))
	r.cache.Invalidate(ctx, cache.FleetMetricsKey)

	if r.log != nil {
		r.log.WithFields(map[string]interface{}{
			"vehicle_id": snap.VehicleID,
			"source":     source,
			"first_seen": firstSeen,
		}).Info("telemetry snapshot stored")
	}

	return &IngestResult{
		VehicleID: snap.VehicleID,
		Source:    source,
		FirstSeen: firstSeen,
	}, nil
}

func (r *Reconciler) lockFor(vehicleID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[vehicleID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[vehicleID] = l
	}
	return l
}
