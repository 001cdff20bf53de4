package registry

import "time"

// Status 车辆运营状态。
type Status string

const (
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusMaintenance Status = "maintenance"
)

// Valid 校验状态取值。
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusMaintenance:
		return true
	}
	return false
}

// Vehicle 车辆登记档案。四个标识字段全库唯一：
// vehicle_id 主键，gps_id / iot_device_id / registration_number 唯一索引。
type Vehicle struct {
	VehicleID          string    `json:"vehicleId" gorm:"column:vehicle_id;primaryKey;size:64"`
	GPSID              string    `json:"gpsId" gorm:"column:gps_id;size:64;uniqueIndex"`
	IoTDeviceID        string    `json:"iotDeviceId" gorm:"column:iot_device_id;size:64;uniqueIndex"`
	RegistrationNumber string    `json:"registrationNumber" gorm:"column:registration_number;size:32;uniqueIndex"`
	DriverName         string    `json:"driverName" gorm:"column:driver_name;size:128"`
	Make               string    `json:"make" gorm:"column:make;size:64"`
	Model              string    `json:"model" gorm:"column:model;size:64"`
	Year               int       `json:"year" gorm:"column:year"`
	Status             Status    `json:"status" gorm:"column:status;size:16;index"`
	CreatedAt          time.Time `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt          time.Time `json:"updatedAt" gorm:"column:updated_at"`
}

// TableName 指定表名
func (Vehicle) TableName() string {
	return "vehicles"
}
