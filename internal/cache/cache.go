// Package cache 提供遥测读路径的短时缓存。
//
// 缓存永远不是数据源：丢了只影响新鲜度，不影响正确性。
// 所有操作都是 fail-open 的——底层故障只记日志，读退化为 miss，写/失效退化为 no-op。
package cache

import (
	"context"
	"time"
)

const (
	// VehicleTTL 单车快照的缓存时长（写入时的绝对过期，非滑动窗口）。
	VehicleTTL = 5 * time.Minute
	// FleetMetricsTTL 车队聚合指标的缓存时长。
	FleetMetricsTTL = 2 * time.Minute

	// FleetMetricsKey 车队聚合指标的缓存键。
	FleetMetricsKey = "fleet:metrics"

	vehicleKeyPrefix = "vehicle:"
)

// VehicleKey 单车快照的缓存键。
func VehicleKey(vehicleID string) string {
	return vehicleKeyPrefix + vehicleID
}

// Cache 读缓存接口。实现必须自行吞掉底层错误（fail-open）。
type Cache interface {
	// Get 命中时返回 (value, true)；miss 或底层故障返回 (nil, false)。
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set 以绝对 TTL 写入；失败只记日志。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)

	// Invalidate 删除条目（不是更新）；下一次读由调用方回源重算。
	Invalidate(ctx context.Context, key string)
}

// Noop 关闭缓存时的实现：所有读都是 miss。行为正确，只是不再吸收读突发。
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, bool)                  { return nil, false }
func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {}
func (Noop) Invalidate(ctx context.Context, key string)                           {}
