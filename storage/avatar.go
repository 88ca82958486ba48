package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"TaskHub/config"
	"TaskHub/logger"
)

// AvatarStore 把微信头像转存到 MinIO，对外提供自有URL。
// 微信头像链接会随用户更换头像失效，转存后产品侧不再依赖微信CDN。
type AvatarStore struct {
	client     *minio.Client
	bucket     string
	publicURL  string
	httpClient *http.Client
}

// NewAvatarStore 初始化 MinIO 客户端并确保存储桶存在
func NewAvatarStore(cfg *config.Config) (*AvatarStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("已创建头像存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	return &AvatarStore{
		client:    client,
		bucket:    cfg.MinioBucket,
		publicURL: cfg.MinioPublicURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}, nil
}

// Mirror 下载微信头像并写入存储桶，返回对外URL
// 同一 openid 覆盖写，用户换头像后下次登录自动更新。
func (s *AvatarStore) Mirror(ctx context.Context, openID, avatarURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build avatar request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("avatar download returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	objectName := fmt.Sprintf("wechat/%s.jpg", openID)
	_, err = s.client.PutObject(ctx, s.bucket, objectName, resp.Body, resp.ContentLength, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store avatar: %w", err)
	}

	return fmt.Sprintf("%s/%s", s.publicURL, objectName), nil
}
