package telemetry

import "testing"

func TestComputeFleetMetrics(t *testing.T) {
	snaps := []Snapshot{
		{VehicleID: "V1", Signals: Attrs{"speed": float64(60)}, Status: Attrs{"moving": true}},
		{VehicleID: "V2", Signals: Attrs{"speed": float64(40)}, Status: Attrs{"moving": false}},
		{VehicleID: "V3", Signals: Attrs{"speed": float64(80)}, Status: Attrs{"moving": true}},
	}

	m := ComputeFleetMetrics(snaps)
	if m.TotalVehicles != 3 {
		t.Fatalf("total: got %d", m.TotalVehicles)
	}
	if m.MovingVehicles != 2 {
		t.Fatalf("moving: got %d", m.MovingVehicles)
	}
	if m.SpeedSamples != 3 {
		t.Fatalf("samples: got %d", m.SpeedSamples)
	}
	if m.AverageSpeed != 60 {
		t.Fatalf("average: got %v", m.AverageSpeed)
	}
	if m.MaxSpeed != 80 {
		t.Fatalf("max: got %v", m.MaxSpeed)
	}
}

// 开放映射：缺 key、类型不对的快照只是不参与对应的统计，不报错。
func TestComputeFleetMetricsSkipsUnusableValues(t *testing.T) {
	snaps := []Snapshot{
		{VehicleID: "V1", Signals: Attrs{"speed": float64(50)}},
		{VehicleID: "V2"}, // 完全没有 signals/status
		{VehicleID: "V3", Signals: Attrs{"speed": "fast"}, Status: Attrs{"moving": "yes"}},
		{VehicleID: "V4", Status: Attrs{"moving": true}},
	}

	m := ComputeFleetMetrics(snaps)
	if m.TotalVehicles != 4 {
		t.Fatalf("total: got %d", m.TotalVehicles)
	}
	if m.SpeedSamples != 1 || m.AverageSpeed != 50 || m.MaxSpeed != 50 {
		t.Fatalf("unexpected speed stats: %+v", m)
	}
	if m.MovingVehicles != 1 {
		t.Fatalf("moving: got %d", m.MovingVehicles)
	}
}

func TestComputeFleetMetricsEmpty(t *testing.T) {
	m := ComputeFleetMetrics(nil)
	if m.TotalVehicles != 0 || m.SpeedSamples != 0 || m.AverageSpeed != 0 || m.MaxSpeed != 0 {
		t.Fatalf("expected zero metrics, got %+v", m)
	}
}
