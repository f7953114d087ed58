package storage

import (
	"time"
)

// StateRecord 状态键值表
type StateRecord struct {
	Key       string    `gorm:"primaryKey" json:"key"`  // 状态键
	Value     string    `gorm:"type:text" json:"value"` // JSON 序列化的状态值
	UpdatedAt time.Time `json:"updatedAt"`              // 更新时间
}
