package uploader

import (
	"fmt"
	"net/http"
	"path"
	"time"

	"esim_store/internal/pkg/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// Uploader 把供应商的二维码图片镜像到自己的 OSS，
// 避免客户端长期依赖供应商 CDN 的链接
type Uploader interface {
	MirrorQRCode(sourceURL, orderID string) (string, error)
}

type AliyunOSSUploader struct {
	client     *oss.Client
	bucket     *oss.Bucket
	config     config.OSSConfig
	httpClient *http.Client
}

func NewAliyunOSSUploader() (*AliyunOSSUploader, error) {
	cfg := config.GlobalConfig.OSS
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("oss config is missing")
	}

	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, err
	}

	return &AliyunOSSUploader{
		client: client,
		bucket: bucket,
		config: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

// MirrorQRCode 下载供应商二维码并上传到 OSS，返回我们自己的 URL
func (u *AliyunOSSUploader) MirrorQRCode(sourceURL, orderID string) (string, error) {
	resp, err := u.httpClient.Get(sourceURL)
	if err != nil {
		return "", fmt.Errorf("download qr code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("qr code source returned status %d", resp.StatusCode)
	}

	// 文件名: qrcodes/YYYYMMDD/<orderID>-<uuid>.png
	ext := path.Ext(sourceURL)
	if ext == "" {
		ext = ".png"
	}
	filename := fmt.Sprintf("qrcodes/%s/%s-%s%s",
		time.Now().Format("20060102"), orderID, uuid.New().String()[:8], ext)

	if err := u.bucket.PutObject(filename, resp.Body); err != nil {
		return "", err
	}

	// 假设 bucket 为公共读或挂了 CDN，直接拼公开地址
	url := fmt.Sprintf("https://%s.%s/%s", u.config.BucketName, u.config.Endpoint, filename)
	return url, nil
}
