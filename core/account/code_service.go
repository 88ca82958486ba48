package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TaskHub/core/sms"
	"TaskHub/logger"
	"TaskHub/model"
	"TaskHub/repository"
)

// Clock 可注入的时钟，过期相关的测试用固定时钟
type Clock func() time.Time

// CodeService 验证码生命周期管理
// 负责发码前置检查、落库、下发和校验消费。
type CodeService struct {
	codes    repository.CodeRepository
	users    repository.UserRepository
	gen      *sms.CodeGenerator
	ttl      time.Duration
	cooldown time.Duration
	now      Clock

	mu     sync.RWMutex
	sender sms.Sender
}

// NewCodeService 创建验证码服务
func NewCodeService(
	codes repository.CodeRepository,
	users repository.UserRepository,
	sender sms.Sender,
	gen *sms.CodeGenerator,
	ttl, cooldown time.Duration,
) *CodeService {
	return &CodeService{
		codes:    codes,
		users:    users,
		gen:      gen,
		sender:   sender,
		ttl:      ttl,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// WithClock 替换时钟，测试用
func (s *CodeService) WithClock(now Clock) *CodeService {
	s.now = now
	return s
}

// SetSender 热更新短信实现（配置重载时切换沙箱/生产）
func (s *CodeService) SetSender(sender sms.Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

func (s *CodeService) currentSender() sms.Sender {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sender
}

// CanIssue 冷却检查：最近一条记录距今不足冷却时长则拒绝
func (s *CodeService) CanIssue(ctx context.Context, phone string, purpose model.CodePurpose) (bool, error) {
	last, ok, err := s.codes.LatestCreatedAt(ctx, phone, purpose)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return s.now().Sub(last) >= s.cooldown, nil
}

// Issue 发码：前置检查 → 落库 → 下发
// 旧验证码不作废，各自按 expires_at 独立失效。
// 短信下发失败不回滚记录，返回 ErrSMSDelivery 让调用方区别于校验类错误。
func (s *CodeService) Issue(ctx context.Context, phone string, purpose model.CodePurpose) (*model.VerificationCode, error) {
	if !model.ValidPurpose(purpose) {
		return nil, fmt.Errorf("unknown code purpose %q", purpose)
	}

	ok, err := s.CanIssue(ctx, phone, purpose)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCodeCooldown
	}

	// 注册要求手机号未被占用，登录和重置密码要求账号已存在，
	// 绑定手机不做预检（冲突在绑定时处理）。
	switch purpose {
	case model.PurposeRegister:
		user, err := s.users.FindByPhone(ctx, phone)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return nil, ErrDuplicatePhone
		}
	case model.PurposeLogin, model.PurposeResetPassword:
		user, err := s.users.FindByPhone(ctx, phone)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrNotRegistered
		}
	}

	now := s.now()
	rec := &model.VerificationCode{
		Phone:     phone,
		Code:      s.gen.Generate(),
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.codes.Create(ctx, rec); err != nil {
		return nil, err
	}

	if err := s.currentSender().Send(ctx, phone, rec.Code, purpose); err != nil {
		logger.Error("验证码短信下发失败",
			logger.String("phone", phone),
			logger.String("purpose", string(purpose)),
			logger.ErrorField(err))
		return rec, fmt.Errorf("%w: %v", ErrSMSDelivery, err)
	}
	return rec, nil
}

// Verify 校验并消费验证码
// 查找加标记是存储层的单条原子操作，同一验证码并发校验只会成功一次。
func (s *CodeService) Verify(ctx context.Context, phone, code string, purpose model.CodePurpose) error {
	result, err := s.codes.Consume(ctx, phone, code, purpose, s.now())
	if err != nil {
		return err
	}
	switch result {
	case repository.ConsumeOK:
		return nil
	case repository.ConsumeExpired:
		return ErrExpiredCode
	default:
		return ErrInvalidCode
	}
}
