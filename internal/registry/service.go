package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/Umesh0245/smartfleet1/internal/common/logger"
)

// Service 车辆登记业务逻辑：唯一性约束、状态校验、稀疏更新。
type Service struct {
	repo Repo
	log  logger.Logger
}

// NewService 创建登记服务。
func NewService(repo Repo, log logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repo cannot be nil")
	}
	return &Service{repo: repo, log: log}, nil
}

// Create 登记一辆新车。四个标识字段依次查重：
// vehicleId -> gpsId -> iotDeviceId -> registrationNumber，
// 命中第一个冲突即返回 *ConflictError，不继续检查后面的字段，也不写库。
func (s *Service) Create(ctx context.Context, v *Vehicle) (*Vehicle, error) {
	if v == nil {
		return nil, fmt.Errorf("vehicle cannot be nil")
	}

	v.VehicleID = strings.TrimSpace(v.VehicleID)
	v.GPSID = strings.TrimSpace(v.GPSID)
	v.IoTDeviceID = strings.TrimSpace(v.IoTDeviceID)
	v.RegistrationNumber = strings.TrimSpace(v.RegistrationNumber)
	v.DriverName = strings.TrimSpace(v.DriverName)

	if v.VehicleID == "" {
		return nil, &ValidationError{Reason: "vehicleId cannot be empty"}
	}
	if v.GPSID == "" {
		return nil, &ValidationError{Reason: "gpsId cannot be empty"}
	}
	if v.IoTDeviceID == "" {
		return nil, &ValidationError{Reason: "iotDeviceId cannot be empty"}
	}
	if v.RegistrationNumber == "" {
		return nil, &ValidationError{Reason: "registrationNumber cannot be empty"}
	}
	if v.Status == "" {
		v.Status = StatusActive
	}
	if !v.Status.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid vehicle status: %s", v.Status)}
	}

	checks := []struct {
		field  string
		value  string
		exists func(context.Context, string) (bool, error)
	}{
		{"vehicleId", v.VehicleID, s.repo.ExistsByVehicleID},
		{"gpsId", v.GPSID, s.repo.ExistsByGPSID},
		{"iotDeviceId", v.IoTDeviceID, s.repo.ExistsByIoTDeviceID},
		{"registrationNumber", v.RegistrationNumber, s.repo.ExistsByRegistrationNumber},
	}
	for _, c := range checks {
		exists, err := c.exists(ctx, c.value)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &ConflictError{Field: c.field, Value: c.value}
		}
	}

	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}

	if s.log != nil {
		s.log.Infof("vehicle registered vehicle_id=%s registration_number=%s", v.VehicleID, v.RegistrationNumber)
	}
	return v, nil
}

// UpdateVehicleInput 稀疏更新：nil 字段保持原值。
type UpdateVehicleInput struct {
	DriverName *string
	Status     *Status
	Make       *string
	Model      *string
	Year       *int
}

// Update 更新车辆档案的可变字段。车辆不存在时返回 *NotFoundError。
func (s *Service) Update(ctx context.Context, vehicleID string, input UpdateVehicleInput) (*Vehicle, error) {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return nil, &ValidationError{Reason: "vehicleId cannot be empty"}
	}

	v, err := s.repo.FindByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &NotFoundError{VehicleID: vehicleID}
	}

	if input.DriverName != nil {
		v.DriverName = strings.TrimSpace(*input.DriverName)
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, &ValidationError{Reason: fmt.Sprintf("invalid vehicle status: %s", *input.Status)}
		}
		v.Status = *input.Status
	}
	if input.Make != nil {
		v.Make = strings.TrimSpace(*input.Make)
	}
	if input.Model != nil {
		v.Model = strings.TrimSpace(*input.Model)
	}
	if input.Year != nil {
		v.Year = *input.Year
	}

	if err := s.repo.Save(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Delete 注销车辆。车辆不存在时返回 *NotFoundError。
func (s *Service) Delete(ctx context.Context, vehicleID string) error {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return &ValidationError{Reason: "vehicleId cannot be empty"}
	}

	v, err := s.repo.FindByID(ctx, vehicleID)
	if err != nil {
		return err
	}
	if v == nil {
		return &NotFoundError{VehicleID: vehicleID}
	}
	return s.repo.Delete(ctx, vehicleID)
}

// Get 按 vehicleId 查询。不存在返回 *NotFoundError。
func (s *Service) Get(ctx context.Context, vehicleID string) (*Vehicle, error) {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return nil, &ValidationError{Reason: "vehicleId cannot be empty"}
	}
	v, err := s.repo.FindByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &NotFoundError{VehicleID: vehicleID}
	}
	return v, nil
}

// ListAll 全量车辆档案。
func (s *Service) ListAll(ctx context.Context) ([]Vehicle, error) {
	return s.repo.ListAll(ctx)
}

// ListByStatus 按状态筛选。
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Vehicle, error) {
	if !status.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid vehicle status: %s", status)}
	}
	return s.repo.ListByStatus(ctx, status)
}

// SearchByDriver 司机姓名模糊搜索。
func (s *Service) SearchByDriver(ctx context.Context, driverName string) ([]Vehicle, error) {
	driverName = strings.TrimSpace(driverName)
	if driverName == "" {
		return nil, &ValidationError{Reason: "driverName cannot be empty"}
	}
	return s.repo.SearchByDriver(ctx, driverName)
}

// CountActive 在役车辆数。
func (s *Service) CountActive(ctx context.Context) (int64, error) {
	return s.repo.CountActive(ctx)
}
