package telemetry

// FleetMetrics 车队聚合指标，由当前快照全量推导（不持久化，只进缓存）。
type FleetMetrics struct {
	TotalVehicles  int     `json:"totalVehicles"`  // 有遥测的车辆数
	MovingVehicles int     `json:"movingVehicles"` // status.moving == true 的车辆数
	SpeedSamples   int     `json:"speedSamples"`   // signals.speed 可解析为数值的车辆数
	AverageSpeed   float64 `json:"averageSpeed"`
	MaxSpeed       float64 `json:"maxSpeed"`
}

// ComputeFleetMetrics 从快照列表计算聚合指标。
// specs/signals/status 是开放映射，缺键或类型不符的条目直接跳过，不报错。
func ComputeFleetMetrics(snaps []Snapshot) FleetMetrics {
	m := FleetMetrics{TotalVehicles: len(snaps)}

	var speedSum float64
	for i := range snaps {
		if v, ok := numericValue(snaps[i].Signals["speed"]); ok {
			m.SpeedSamples++
			speedSum += v
			if v > m.MaxSpeed {
				m.MaxSpeed = v
			}
		}
		if moving, ok := snaps[i].Status["moving"].(bool); ok && moving {
			m.MovingVehicles++
		}
	}
	if m.SpeedSamples > 0 {
		m.AverageSpeed = speedSum / float64(m.SpeedSamples)
	}
	return m
}

// numericValue 开放映射里的数值可能以多种 Go 类型出现（json 解码为 float64，
// 但上游也可能直接构造 int），统一转成 float64。
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
