package account

import (
	"context"
	"sync"
	"time"

	"TaskHub/model"
	"TaskHub/repository"

	"gorm.io/gorm"
)

// 本包测试用的内存仓库，唯一键约束与持久层行为保持一致。

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User)}
}

func sameStr(p *string, s string) bool {
	return p != nil && *p == s
}

func (f *fakeUserRepo) findLocked(match func(*model.User) bool) *model.User {
	for _, u := range f.users {
		if match(u) {
			return u
		}
	}
	return nil
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeUserRepo) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findLocked(func(u *model.User) bool { return sameStr(u.Phone, phone) }), nil
}

func (f *fakeUserRepo) FindByWechatOpenID(ctx context.Context, openID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findLocked(func(u *model.User) bool { return sameStr(u.WechatOpenID, openID) }), nil
}

func (f *fakeUserRepo) FindByWechatUnionID(ctx context.Context, unionID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findLocked(func(u *model.User) bool { return sameStr(u.WechatUnionID, unionID) }), nil
}

func (f *fakeUserRepo) conflictLocked(user *model.User) bool {
	return f.findLocked(func(u *model.User) bool {
		if u.ID == user.ID {
			return false
		}
		if user.Phone != nil && sameStr(u.Phone, *user.Phone) {
			return true
		}
		if user.WechatOpenID != nil && sameStr(u.WechatOpenID, *user.WechatOpenID) {
			return true
		}
		if user.WechatUnionID != nil && sameStr(u.WechatUnionID, *user.WechatUnionID) {
			return true
		}
		return u.Username == user.Username
	}) != nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictLocked(user) {
		return gorm.ErrDuplicatedKey
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) Save(ctx context.Context, user *model.User, fields ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictLocked(user) {
		return gorm.ErrDuplicatedKey
	}
	user.UpdatedAt = time.Now()
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, user.ID)
	return nil
}

func (f *fakeUserRepo) Transaction(ctx context.Context, fn func(repo repository.UserRepository) error) error {
	return fn(f)
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

type fakeCodeRepo struct {
	mu    sync.Mutex
	codes []*model.VerificationCode
}

func newFakeCodeRepo() *fakeCodeRepo {
	return &fakeCodeRepo{}
}

func (f *fakeCodeRepo) Create(ctx context.Context, code *model.VerificationCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeCodeRepo) LatestCreatedAt(ctx context.Context, phone string, purpose model.CodePurpose) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest time.Time
	found := false
	for _, c := range f.codes {
		if c.Phone == phone && c.Purpose == purpose && c.CreatedAt.After(latest) {
			latest = c.CreatedAt
			found = true
		}
	}
	return latest, found, nil
}

func (f *fakeCodeRepo) Consume(ctx context.Context, phone, code string, purpose model.CodePurpose, now time.Time) (repository.ConsumeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var candidate *model.VerificationCode
	for _, c := range f.codes {
		if c.Phone != phone || c.Code != code || c.Purpose != purpose || c.IsUsed {
			continue
		}
		if candidate == nil || c.CreatedAt.After(candidate.CreatedAt) {
			candidate = c
		}
	}
	if candidate == nil {
		return repository.ConsumeInvalid, nil
	}
	if !candidate.ExpiresAt.After(now) {
		// 过期记录保持未使用状态，只报告不标记
		return repository.ConsumeExpired, nil
	}
	candidate.IsUsed = true
	return repository.ConsumeOK, nil
}

type fakeStateRepo struct {
	mu     sync.Mutex
	states map[string]*model.OAuthState
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[string]*model.OAuthState)}
}

func (f *fakeStateRepo) Create(ctx context.Context, state *model.OAuthState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.State] = state
	return nil
}

func (f *fakeStateRepo) Consume(ctx context.Context, state string, now time.Time) (*model.OAuthState, repository.ConsumeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.states[state]
	if !ok || rec.IsUsed {
		return nil, repository.ConsumeInvalid, nil
	}
	if !rec.ExpiresAt.After(now) {
		return nil, repository.ConsumeExpired, nil
	}
	rec.IsUsed = true
	return rec, repository.ConsumeOK, nil
}

// fakeSender 记录发送调用，可注入失败
type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	fail  error
	codes []string
}

func (f *fakeSender) Send(ctx context.Context, phone, code string, purpose model.CodePurpose) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, phone)
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// memSessions 内存 refresh 会话存储
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]int64
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]int64)}
}

func (m *memSessions) Put(ctx context.Context, jti string, userID int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[jti] = userID
	return nil
}

func (m *memSessions) Get(ctx context.Context, jti string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.sessions[jti]
	return id, ok, nil
}

func (m *memSessions) Delete(ctx context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, jti)
	return nil
}
