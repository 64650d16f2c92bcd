package storage

import "context"

// UploadResult 描述一次成功上传后的公开访问信息。
type UploadResult struct {
	URL    string
	Width  int
	Height int
}

// Uploader 把一段图片字节写入对象存储并返回可公开访问的 URL。
// folder 用于按业务归档（例如 books），ext 为包含点号的扩展名。
type Uploader interface {
	Upload(ctx context.Context, folder string, data []byte, ext string) (UploadResult, error)
}
