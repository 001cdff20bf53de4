package registry

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Repo 车辆档案存储接口。
type Repo interface {
	Create(ctx context.Context, v *Vehicle) error
	Save(ctx context.Context, v *Vehicle) error
	// FindByID 未找到时返回 (nil, nil)。
	FindByID(ctx context.Context, vehicleID string) (*Vehicle, error)
	Delete(ctx context.Context, vehicleID string) error

	ExistsByVehicleID(ctx context.Context, vehicleID string) (bool, error)
	ExistsByGPSID(ctx context.Context, gpsID string) (bool, error)
	ExistsByIoTDeviceID(ctx context.Context, iotDeviceID string) (bool, error)
	ExistsByRegistrationNumber(ctx context.Context, registrationNumber string) (bool, error)

	ListAll(ctx context.Context) ([]Vehicle, error)
	ListByStatus(ctx context.Context, status Status) ([]Vehicle, error)
	SearchByDriver(ctx context.Context, driverName string) ([]Vehicle, error)
	CountActive(ctx context.Context) (int64, error)
}

// MySQLRepo 基于 GORM 的车辆档案存储。
type MySQLRepo struct {
	db *gorm.DB
}

// NewMySQLRepo 创建车辆档案存储。
func NewMySQLRepo(db *gorm.DB) (*MySQLRepo, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &MySQLRepo{db: db}, nil
}

func (r *MySQLRepo) Create(ctx context.Context, v *Vehicle) error {
	if v == nil {
		return fmt.Errorf("vehicle cannot be nil")
	}
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

func (r *MySQLRepo) Save(ctx context.Context, v *Vehicle) error {
	if v == nil {
		return fmt.Errorf("vehicle cannot be nil")
	}
	if err := r.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("failed to save vehicle: %w", err)
	}
	return nil
}

func (r *MySQLRepo) FindByID(ctx context.Context, vehicleID string) (*Vehicle, error) {
	var v Vehicle
	err := r.db.WithContext(ctx).Where("vehicle_id = ?", vehicleID).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find vehicle: %w", err)
	}
	return &v, nil
}

func (r *MySQLRepo) Delete(ctx context.Context, vehicleID string) error {
	if err := r.db.WithContext(ctx).Where("vehicle_id = ?", vehicleID).Delete(&Vehicle{}).Error; err != nil {
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	return nil
}

func (r *MySQLRepo) existsBy(ctx context.Context, column, value string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Vehicle{}).Where(column+" = ?", value).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", column, err)
	}
	return count > 0, nil
}

func (r *MySQLRepo) ExistsByVehicleID(ctx context.Context, vehicleID string) (bool, error) {
	return r.existsBy(ctx, "vehicle_id", vehicleID)
}

func (r *MySQLRepo) ExistsByGPSID(ctx context.Context, gpsID string) (bool, error) {
	return r.existsBy(ctx, "gps_id", gpsID)
}

func (r *MySQLRepo) ExistsByIoTDeviceID(ctx context.Context, iotDeviceID string) (bool, error) {
	return r.existsBy(ctx, "iot_device_id", iotDeviceID)
}

func (r *MySQLRepo) ExistsByRegistrationNumber(ctx context.Context, registrationNumber string) (bool, error) {
	return r.existsBy(ctx, "registration_number", registrationNumber)
}

func (r *MySQLRepo) ListAll(ctx context.Context) ([]Vehicle, error) {
	var vehicles []Vehicle
	if err := r.db.WithContext(ctx).Order("vehicle_id").Find(&vehicles).Error; err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	return vehicles, nil
}

func (r *MySQLRepo) ListByStatus(ctx context.Context, status Status) ([]Vehicle, error) {
	var vehicles []Vehicle
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("vehicle_id").Find(&vehicles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles by status: %w", err)
	}
	return vehicles, nil
}

func (r *MySQLRepo) SearchByDriver(ctx context.Context, driverName string) ([]Vehicle, error) {
	var vehicles []Vehicle
	err := r.db.WithContext(ctx).
		Where("driver_name LIKE ?", "%"+driverName+"%").
		Order("vehicle_id").
		Find(&vehicles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search vehicles by driver: %w", err)
	}
	return vehicles, nil
}

func (r *MySQLRepo) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Vehicle{}).Where("status = ?", StatusActive).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active vehicles: %w", err)
	}
	return count, nil
}
