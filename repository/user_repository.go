package repository

import (
	"context"
	"errors"

	"TaskHub/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// UserRepository 用户数据访问接口
// 查询方法未命中时返回 (nil, nil)，调用方按是否为 nil 分支。
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByPhone(ctx context.Context, phone string) (*model.User, error)
	FindByWechatOpenID(ctx context.Context, openID string) (*model.User, error)
	FindByWechatUnionID(ctx context.Context, unionID string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	// Save 持久化指定字段，不传字段时保存整条记录
	Save(ctx context.Context, user *model.User, fields ...string) error
	Delete(ctx context.Context, user *model.User) error
	// Transaction 在单个事务内执行 fn，fn 收到的仓库绑定事务连接
	Transaction(ctx context.Context, fn func(repo UserRepository) error) error
}

// gormUserRepository GORM 实现
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository 创建 GORM 用户仓库
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) findOne(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// FindByID 按ID查询用户
func (r *gormUserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByPhone 按手机号查询用户
func (r *gormUserRepository) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	return r.findOne(ctx, "phone = ?", phone)
}

// FindByWechatOpenID 按微信OpenID查询用户
func (r *gormUserRepository) FindByWechatOpenID(ctx context.Context, openID string) (*model.User, error) {
	return r.findOne(ctx, "wechat_openid = ?", openID)
}

// FindByWechatUnionID 按微信UnionID查询用户
func (r *gormUserRepository) FindByWechatUnionID(ctx context.Context, unionID string) (*model.User, error) {
	return r.findOne(ctx, "wechat_unionid = ?", unionID)
}

// Create 创建用户，唯一键冲突由 IsDuplicateKey 识别
func (r *gormUserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Save 持久化用户字段
func (r *gormUserRepository) Save(ctx context.Context, user *model.User, fields ...string) error {
	if len(fields) == 0 {
		return r.db.WithContext(ctx).Save(user).Error
	}
	return r.db.WithContext(ctx).Model(user).Select(fields).Updates(user).Error
}

// Delete 删除用户
func (r *gormUserRepository) Delete(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Delete(user).Error
}

// Transaction 在单个事务内执行 fn
func (r *gormUserRepository) Transaction(ctx context.Context, fn func(repo UserRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormUserRepository{db: tx})
	})
}

// IsDuplicateKey 判断是否为唯一键冲突
// 并发创建同一身份时，落败方据此把错误转成查询重试。
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
