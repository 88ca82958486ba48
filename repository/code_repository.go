package repository

import (
	"context"
	"errors"
	"time"

	"TaskHub/model"

	"gorm.io/gorm"
)

// ConsumeResult 验证码/状态码消费结果
type ConsumeResult int

const (
	// ConsumeOK 消费成功，记录已原子标记为已使用
	ConsumeOK ConsumeResult = iota
	// ConsumeInvalid 无匹配的未使用记录
	ConsumeInvalid
	// ConsumeExpired 记录存在但已过期，不做标记
	ConsumeExpired
)

// CodeRepository 验证码数据访问接口
type CodeRepository interface {
	Create(ctx context.Context, code *model.VerificationCode) error
	// LatestCreatedAt 返回 (phone, purpose) 最近一条记录的创建时间，用于冷却判断
	LatestCreatedAt(ctx context.Context, phone string, purpose model.CodePurpose) (time.Time, bool, error)
	// Consume 原子消费最新一条匹配的未使用验证码
	Consume(ctx context.Context, phone, code string, purpose model.CodePurpose, now time.Time) (ConsumeResult, error)
}

// gormCodeRepository GORM 实现
type gormCodeRepository struct {
	db *gorm.DB
}

// NewGormCodeRepository 创建 GORM 验证码仓库
func NewGormCodeRepository(db *gorm.DB) CodeRepository {
	return &gormCodeRepository{db: db}
}

// Create 持久化一条新验证码记录
func (r *gormCodeRepository) Create(ctx context.Context, code *model.VerificationCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

// LatestCreatedAt 最近一次发码时间
func (r *gormCodeRepository) LatestCreatedAt(ctx context.Context, phone string, purpose model.CodePurpose) (time.Time, bool, error) {
	var rec model.VerificationCode
	err := r.db.WithContext(ctx).
		Where("phone = ? AND purpose = ?", phone, purpose).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return rec.CreatedAt, true, nil
}

// Consume 单条条件更新完成查找加标记，两个并发请求竞争同一验证码时
// 只有一个能拿到受影响行数 1，另一个观察到 ConsumeInvalid。
func (r *gormCodeRepository) Consume(ctx context.Context, phone, code string, purpose model.CodePurpose, now time.Time) (ConsumeResult, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE verification_codes SET is_used = 1
		 WHERE phone = ? AND code = ? AND purpose = ? AND is_used = 0 AND expires_at > ?
		 ORDER BY created_at DESC LIMIT 1`,
		phone, code, purpose, now,
	)
	if res.Error != nil {
		return ConsumeInvalid, res.Error
	}
	if res.RowsAffected == 1 {
		return ConsumeOK, nil
	}

	// 没有可消费的记录：区分“不存在/已使用”与“存在但已过期”。
	// 过期的记录保持未使用状态，只报告不标记。
	var rec model.VerificationCode
	err := r.db.WithContext(ctx).
		Where("phone = ? AND code = ? AND purpose = ? AND is_used = 0", phone, code, purpose).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ConsumeInvalid, nil
		}
		return ConsumeInvalid, err
	}
	return ConsumeExpired, nil
}
