package telemetry

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 遥测快照的持久化接口：每个 vehicle id 恰好一行“当前状态”。
// 这里只有整行替换，不做分组合并——合并策略属于 Reconciler，Store 保持简单可单测。
type Store interface {
	// Upsert 整行写入；幂等，同一快照写两次结果相同。
	Upsert(ctx context.Context, snap *Snapshot) error

	// GetByVehicleID 查单车快照；不存在返回 (nil, nil)，首次上报前查不到是正常情况。
	GetByVehicleID(ctx context.Context, vehicleID string) (*Snapshot, error)

	// ListAll 全量扫描当前快照（车队规模的数据量，可接受）。
	ListAll(ctx context.Context) ([]Snapshot, error)
}

// MySQLStore GORM 实现。
type MySQLStore struct {
	db *gorm.DB
}

// NewMySQLStore 创建 MySQLStore。
func NewMySQLStore(db *gorm.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Upsert(ctx context.Context, snap *Snapshot) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store db is nil")
	}
	if snap == nil {
		return fmt.Errorf("snapshot is nil")
	}

	// 单条 INSERT ... ON DUPLICATE KEY UPDATE：整行替换且原子，读侧看不到半行
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(snap).Error
	if err != nil {
		return &TransientStoreError{Op: "upsert", Err: err}
	}
	return nil
}

func (s *MySQLStore) GetByVehicleID(ctx context.Context, vehicleID string) (*Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}

	var snap Snapshot
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &TransientStoreError{Op: "get", Err: err}
	}
	return &snap, nil
}

func (s *MySQLStore) ListAll(ctx context.Context) ([]Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}

	var snaps []Snapshot
	if err := s.db.WithContext(ctx).Find(&snaps).Error; err != nil {
		return nil, &TransientStoreError{Op: "list", Err: err}
	}
	return snaps, nil
}
