package repository

import (
	"context"
	"errors"
	"time"

	"TaskHub/model"

	"gorm.io/gorm"
)

// StateRepository 微信登录状态码数据访问接口
type StateRepository interface {
	Create(ctx context.Context, state *model.OAuthState) error
	// Consume 原子消费状态码；重复消费（如回调被重放）时后到者拿不到记录
	Consume(ctx context.Context, state string, now time.Time) (*model.OAuthState, ConsumeResult, error)
}

// gormStateRepository GORM 实现
type gormStateRepository struct {
	db *gorm.DB
}

// NewGormStateRepository 创建 GORM 状态码仓库
func NewGormStateRepository(db *gorm.DB) StateRepository {
	return &gormStateRepository{db: db}
}

// Create 持久化状态码
func (r *gormStateRepository) Create(ctx context.Context, state *model.OAuthState) error {
	return r.db.WithContext(ctx).Create(state).Error
}

// Consume 条件更新标记已使用，受影响行数为 1 才算消费成功
func (r *gormStateRepository) Consume(ctx context.Context, state string, now time.Time) (*model.OAuthState, ConsumeResult, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE oauth_states SET is_used = 1
		 WHERE state = ? AND is_used = 0 AND expires_at > ?`,
		state, now,
	)
	if res.Error != nil {
		return nil, ConsumeInvalid, res.Error
	}
	if res.RowsAffected == 1 {
		var rec model.OAuthState
		if err := r.db.WithContext(ctx).Where("state = ?", state).First(&rec).Error; err != nil {
			return nil, ConsumeInvalid, err
		}
		return &rec, ConsumeOK, nil
	}

	// 未消费成功：已使用或不存在的状态码报 Invalid，存在但过期的报 Expired。
	var rec model.OAuthState
	err := r.db.WithContext(ctx).Where("state = ? AND is_used = 0", state).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ConsumeInvalid, nil
		}
		return nil, ConsumeInvalid, err
	}
	return nil, ConsumeExpired, nil
}
