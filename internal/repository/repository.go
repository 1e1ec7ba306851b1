package repository

import (
	"context"
	"errors"

	"github.com/cahierdetextes/backend/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

// LogbookRepository 记事本文档仓储接口
type LogbookRepository interface {
	// Get 根据实例标识获取，不存在时返回 ErrNotFound
	Get(ctx context.Context, instanceID string) (*model.Logbook, error)

	// Save 按实例标识写入，已存在则覆盖数据
	Save(ctx context.Context, logbook *model.Logbook) error

	// List 列出所有实例（不含数据），按更新时间倒序
	List(ctx context.Context) ([]model.Logbook, error)

	// Delete 删除实例
	Delete(ctx context.Context, instanceID string) error
}
