package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gorm.io/gorm"
)

// StateRepo 基于 sqlite 的持久状态存储，实现 Store 接口。
// 变更通知在进程内同步分发。
type StateRepo struct {
	db *DB

	mu        sync.Mutex
	listeners []func(keys []string)
}

// NewStateRepo 创建状态仓库实例
func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

// Get 读取键集
func (r *StateRepo) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	var records []StateRecord
	if err := r.db.GormDB().WithContext(ctx).Where("key IN ?", keys).Find(&records).Error; err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(records))
	for _, rec := range records {
		out[rec.Key] = json.RawMessage(rec.Value)
	}
	return out, nil
}

// Set 批量写入键值（存在则更新），随后通知监听器
func (r *StateRepo) Set(ctx context.Context, values map[string]any) error {
	changed := make([]string, 0, len(values))
	err := r.db.GormDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for key, value := range values {
			b, err := json.Marshal(value)
			if err != nil {
				return err
			}
			record := StateRecord{Key: key, Value: string(b), UpdatedAt: now}
			if err := tx.Save(&record).Error; err != nil {
				return err
			}
			changed = append(changed, key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.notify(changed)
	return nil
}

// Remove 删除键集，随后通知监听器
func (r *StateRepo) Remove(ctx context.Context, keys ...string) error {
	if err := r.db.GormDB().WithContext(ctx).Delete(&StateRecord{}, "key IN ?", keys).Error; err != nil {
		return err
	}
	r.notify(keys)
	return nil
}

// OnChange 注册变更监听器
func (r *StateRepo) OnChange(fn func(keys []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *StateRepo) notify(keys []string) {
	r.mu.Lock()
	ls := r.listeners
	r.mu.Unlock()
	for _, fn := range ls {
		fn(keys)
	}
}

// GetAll 获取所有状态键值（调试用）
func (r *StateRepo) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	var records []StateRecord
	if err := r.db.GormDB().WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(records))
	for _, rec := range records {
		out[rec.Key] = json.RawMessage(rec.Value)
	}
	return out, nil
}
