package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// LocalUploader 将图片写入本地上传目录，经由静态路由对外提供访问。
// 目录结构为 {dir}/{folder}/{日期-uuid}{ext}，对应的 URL 为
// {baseURL}{urlPath}/{folder}/{文件名}。
type LocalUploader struct {
	dir     string
	urlPath string
	baseURL string
}

// NewLocalUploader 构造 LocalUploader。baseURL 为空时返回相对路径 URL。
func NewLocalUploader(dir, urlPath, baseURL string) *LocalUploader {
	return &LocalUploader{
		dir:     dir,
		urlPath: strings.TrimRight(urlPath, "/"),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

// Upload 保存图片字节并返回公开 URL 与解码出的宽高。
// 无法识别的图片格式不视为失败，宽高记为 0。
func (u *LocalUploader) Upload(ctx context.Context, folder string, data []byte, ext string) (UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return UploadResult{}, err
	}
	if len(data) == 0 {
		return UploadResult{}, fmt.Errorf("upload: empty image data")
	}

	folder = strings.Trim(folder, "/")
	targetDir := u.dir
	if folder != "" {
		targetDir = filepath.Join(u.dir, folder)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return UploadResult{}, fmt.Errorf("create upload dir: %w", err)
	}

	if ext == "" {
		ext = ".webp"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	// 生成唯一文件名
	name := fmt.Sprintf("%s-%s%s", time.Now().Format("20060102"), uuid.New().String(), ext)
	path := filepath.Join(targetDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return UploadResult{}, fmt.Errorf("write upload file: %w", err)
	}

	width, height := decodeBounds(data)

	url := u.urlPath + "/" + name
	if folder != "" {
		url = u.urlPath + "/" + folder + "/" + name
	}
	if u.baseURL != "" {
		url = u.baseURL + url
	}

	return UploadResult{URL: url, Width: width, Height: height}, nil
}

func decodeBounds(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
