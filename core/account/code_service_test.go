package account

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TaskHub/core/sms"
	"TaskHub/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodeService(codes *fakeCodeRepo, users *fakeUserRepo, sender sms.Sender) *CodeService {
	gen := sms.NewCodeGenerator(6, true, "123456", 1)
	return NewCodeService(codes, users, sender, gen, 5*time.Minute, time.Minute)
}

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	codes := newFakeCodeRepo()
	users := newFakeUserRepo()
	sender := &fakeSender{}
	svc := newCodeService(codes, users, sender)

	rec, err := svc.Issue(ctx, "+8613800138000", model.PurposeRegister)
	require.NoError(t, err)
	assert.Equal(t, "123456", rec.Code)
	assert.Equal(t, 1, sender.sentCount())

	require.NoError(t, svc.Verify(ctx, "+8613800138000", "123456", model.PurposeRegister))

	// 同一验证码不能消费两次
	err = svc.Verify(ctx, "+8613800138000", "123456", model.PurposeRegister)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestIssueCooldown(t *testing.T) {
	ctx := context.Background()
	codes := newFakeCodeRepo()
	users := newFakeUserRepo()
	svc := newCodeService(codes, users, &fakeSender{})

	base := time.Now()
	svc.WithClock(func() time.Time { return base })

	_, err := svc.Issue(ctx, "+8613800138000", model.PurposeRegister)
	require.NoError(t, err)

	// 冷却期内再次发码被拒绝
	_, err = svc.Issue(ctx, "+8613800138000", model.PurposeRegister)
	assert.ErrorIs(t, err, ErrCodeCooldown)

	// 差一秒到冷却边界仍然被拒绝
	svc.WithClock(func() time.Time { return base.Add(time.Minute - time.Second) })
	_, err = svc.Issue(ctx, "+8613800138000", model.PurposeRegister)
	assert.ErrorIs(t, err, ErrCodeCooldown)

	// 到达冷却边界后放行
	svc.WithClock(func() time.Time { return base.Add(time.Minute) })
	_, err = svc.Issue(ctx, "+8613800138000", model.PurposeRegister)
	assert.NoError(t, err)

	// 不同手机号不受影响
	svc.WithClock(func() time.Time { return base })
	_, err = svc.Issue(ctx, "+8613900139000", model.PurposeRegister)
	assert.NoError(t, err)
}

func TestIssuePurposeChecks(t *testing.T) {
	ctx := context.Background()
	codes := newFakeCodeRepo()
	users := newFakeUserRepo()
	svc := newCodeService(codes, users, &fakeSender{})

	phone := "+8613800138000"
	require.NoError(t, users.Create(ctx, &model.User{Username: "u1", Phone: strPtr(phone)}))

	// 注册用途要求手机号未被占用
	_, err := svc.Issue(ctx, phone, model.PurposeRegister)
	assert.ErrorIs(t, err, ErrDuplicatePhone)

	// 登录和重置密码要求账号已存在
	_, err = svc.Issue(ctx, "+8613900139000", model.PurposeLogin)
	assert.ErrorIs(t, err, ErrNotRegistered)
	_, err = svc.Issue(ctx, "+8613900139000", model.PurposeResetPassword)
	assert.ErrorIs(t, err, ErrNotRegistered)

	// 绑定手机不做预检
	_, err = svc.Issue(ctx, "+8613900139000", model.PurposeBindPhone)
	assert.NoError(t, err)

	// 未知用途直接报错
	_, err = svc.Issue(ctx, phone, model.CodePurpose("destroy"))
	assert.Error(t, err)
}

func TestIssueSMSFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	codes := newFakeCodeRepo()
	users := newFakeUserRepo()
	sender := &fakeSender{fail: errors.New("gateway down")}
	svc := newCodeService(codes, users, sender)

	_, err := svc.Issue(ctx, "+8613800138000", model.PurposeRegister)
	require.ErrorIs(t, err, ErrSMSDelivery)

	// 记录已落库，验证码依然可以消费
	assert.NoError(t, svc.Verify(ctx, "+8613800138000", "123456", model.PurposeRegister))
}

func TestVerifyExpired(t *testing.T) {
	ctx := context.Background()
	codes := newFakeCodeRepo()
	users := newFakeUserRepo()
	svc := newCodeService(codes, users, &fakeSender{})

	base := time.Now()
	svc.WithClock(func() time.Time { return base })

	_, err := svc.Issue(ctx, "+8613800138000", model.PurposeBindPhone)
	require.NoError(t, err)

	// 有效期内可用性不受影响
	svc.WithClock(func() time.Time { return base.Add(5*time.Minute - time.Second) })
	require.NoError(t, svc.Verify(ctx, "+8613800138000", "123456", model.PurposeBindPhone))

	// 重新发码并推进到过期时刻
	svc.WithClock(func() time.Time { return base.Add(10 * time.Minute) })
	_, err = svc.Issue(ctx, "+8613800138000", model.PurposeBindPhone)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return base.Add(15 * time.Minute) })
	err = svc.Verify(ctx, "+8613800138000", "123456", model.PurposeBindPhone)
	assert.ErrorIs(t, err, ErrExpiredCode)

	// 过期记录只报告不标记，保持未使用状态
	expired := codes.codes[len(codes.codes)-1]
	assert.False(t, expired.IsUsed)
}

func TestVerifyWrongPurpose(t *testing.T) {
	ctx := context.Background()
	codes := newFakeCodeRepo()
	users := newFakeUserRepo()
	svc := newCodeService(codes, users, &fakeSender{})

	_, err := svc.Issue(ctx, "+8613800138000", model.PurposeRegister)
	require.NoError(t, err)

	// register 用途的验证码不能用于绑定手机
	err = svc.Verify(ctx, "+8613800138000", "123456", model.PurposeBindPhone)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	codes := newFakeCodeRepo()
	users := newFakeUserRepo()
	svc := newCodeService(codes, users, &fakeSender{})

	_, err := svc.Issue(ctx, "+8613800138000", model.PurposeBindPhone)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Verify(ctx, "+8613800138000", "123456", model.PurposeBindPhone)
		}()
	}
	wg.Wait()
	close(results)

	okCount := 0
	for err := range results {
		if err == nil {
			okCount++
		} else {
			assert.ErrorIs(t, err, ErrInvalidCode)
		}
	}
	assert.Equal(t, 1, okCount)
}

func TestLatestCodeWins(t *testing.T) {
	ctx := context.Background()
	codes := newFakeCodeRepo()
	users := newFakeUserRepo()
	// 非沙箱模式生成随机验证码，两次发码内容不同
	gen := sms.NewCodeGenerator(6, false, "", 42)
	sender := &fakeSender{}
	svc := NewCodeService(codes, users, sender, gen, 5*time.Minute, time.Minute)

	base := time.Now()
	svc.WithClock(func() time.Time { return base })
	_, err := svc.Issue(ctx, "+8613800138000", model.PurposeBindPhone)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return base.Add(2 * time.Minute) })
	_, err = svc.Issue(ctx, "+8613800138000", model.PurposeBindPhone)
	require.NoError(t, err)

	require.Len(t, sender.codes, 2)
	first, second := sender.codes[0], sender.codes[1]

	// 两个验证码各自独立有效
	require.NoError(t, svc.Verify(ctx, "+8613800138000", second, model.PurposeBindPhone))
	require.NoError(t, svc.Verify(ctx, "+8613800138000", first, model.PurposeBindPhone))
}
