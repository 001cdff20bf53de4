package telemetry

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Attrs 开放式属性组（string -> 任意标量/嵌套值）。
// 上报方的字段集合不固定，这里必须原样接收并原样吐回，不能丢未知键。
// 同时实现 Valuer/Scanner，落库为 JSON 列。
type Attrs map[string]any

// Value 实现 driver.Valuer。
func (a Attrs) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan 实现 sql.Scanner。
func (a *Attrs) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported attrs column type %T", value)
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, a)
}

// Snapshot 单车的“最新已知状态”快照（vehicle_telemetry 表，每车一行）。
// Timestamp 是上报方给的原始字符串，原样保存、不做解析——
// 排序语义只看到达顺序，不信任上报时间戳（见 Reconciler）。
type Snapshot struct {
	// 三个属性组不能加 omitempty：空组（{}）和缺组（null/nil）是不同的状态，
	// 序列化必须保持这个区别，否则 decode(encode(s)) != s。
	VehicleID string `json:"vehicleId" gorm:"column:vehicle_id;primaryKey;size:64"`
	Timestamp string `json:"timestamp" gorm:"size:64"`
	Specs     Attrs  `json:"specs" gorm:"type:json"`   // 静态/低频属性
	Signals   Attrs  `json:"signals" gorm:"type:json"` // 高频传感器读数
	Status    Attrs  `json:"status" gorm:"type:json"`  // 运行状态标志
}

// TableName GORM 表名。
func (Snapshot) TableName() string {
	return "vehicle_telemetry"
}

// Decode 解析遥测载荷。
// 失败一律返回 *DecodeError：JSON 不合法，或 vehicleId 缺失/为空。
// specs/signals/status 内的未知键不是错误，原样保留。
func Decode(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	snap.VehicleID = strings.TrimSpace(snap.VehicleID)
	if snap.VehicleID == "" {
		return nil, &DecodeError{Reason: "vehicleId is required"}
	}
	return &snap, nil
}

// Encode 序列化快照。与 Decode 满足 round-trip：decode(encode(s)) == s。
func Encode(snap *Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	return json.Marshal(snap)
}
