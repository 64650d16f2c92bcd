package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/fablepress/internal/storage"
)

const (
	// maxImageAttempts 是单张插画的总尝试次数上限，含首次调用。
	maxImageAttempts = 3
	// defaultImageRetryDelay 在服务端未给出等待时长时使用。
	defaultImageRetryDelay = 5 * time.Second
	// maxImageBytes 限制单张图片的读取体积。
	maxImageBytes = 16 << 20
)

// RateLimitError 表示图片服务返回了限流信号，RetryAfter 为服务端建议的等待时长。
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// IsRateLimitError 判断错误链中是否包含限流错误。
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

type imageOutputKind int

const (
	// imageOutputURL 表示服务端返回了一条可下载的图片链接。
	imageOutputURL imageOutputKind = iota
	// imageOutputStream 表示服务端直接返回了图片字节流。
	imageOutputStream
)

// imageOutput 是图片服务两种返回形态的显式标签联合，
// 由 normalize 统一落成内存字节后再进入上传环节。
type imageOutput struct {
	kind   imageOutputKind
	url    string
	stream io.ReadCloser
}

type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt        string `json:"prompt"`
	NumOutputs    int    `json:"num_outputs"`
	AspectRatio   string `json:"aspect_ratio"`
	OutputFormat  string `json:"output_format"`
	OutputQuality int    `json:"output_quality"`
}

type predictionResponse struct {
	Output json.RawMessage `json:"output"`
	Status string          `json:"status"`
	Detail string          `json:"detail"`
	Error  string          `json:"error"`
}

// ImageAsset 是一张已上传插画的公开 URL 与解码出的宽高。
// 宽高解码失败时为 0，不影响插画可用。
type ImageAsset struct {
	URL    string
	Width  int
	Height int
}

// ImageGenerator 定义插画生成能力：输入描述，输出持久可访问的插画资产。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, description string) (ImageAsset, error)
}

// ImageService 调用图片生成服务，并把产出归一化后上传到对象存储。
// 只有限流响应会触发有限次重试，其余错误一律立刻向上传播。
type ImageService struct {
	settings   *SystemSettingService
	uploader   storage.Uploader
	http       httpDoer
	baseURL    string
	retryDelay time.Duration
}

// NewImageService 构造默认的 ImageService。
func NewImageService(settings *SystemSettingService, uploader storage.Uploader) *ImageService {
	return &ImageService{
		settings:   settings,
		uploader:   uploader,
		http:       &http.Client{Timeout: 180 * time.Second},
		baseURL:    "https://api.replicate.com/v1",
		retryDelay: defaultImageRetryDelay,
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *ImageService) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.http = &http.Client{Timeout: 180 * time.Second}
		return
	}
	s.http = client
}

// SetBaseURL 覆盖默认的图片模型 API 地址。
func (s *ImageService) SetBaseURL(base string) {
	s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// SetRetryDelay 覆盖服务端未建议等待时长时的默认退避间隔，主要用于测试。
func (s *ImageService) SetRetryDelay(d time.Duration) {
	if d <= 0 {
		s.retryDelay = defaultImageRetryDelay
		return
	}
	s.retryDelay = d
}

// GenerateImage 为一段插画描述生成图片并返回上传后的公开 URL。
// 描述会被追加统一的风格后缀以保证整本书画风一致。重试只针对
// 限流信号，最多 maxImageAttempts 次尝试，间隔优先采用服务端在
// Retry-After 中建议的时长。重试丢弃的尝试可能已经完成过上传，
// 这些孤儿文件不做补偿清理。
func (s *ImageService) GenerateImage(ctx context.Context, description string) (ImageAsset, error) {
	settings, err := s.settings.GetSettings()
	if err != nil {
		return ImageAsset{}, fmt.Errorf("读取系统设置失败: %w", err)
	}
	if strings.TrimSpace(settings.ImageAPIToken) == "" {
		return ImageAsset{}, ErrAIAPIKeyMissing
	}

	prompt := strings.TrimSpace(description) + settings.ImageStyleSuffix
	logAIExchange("IMAGE", "prompt", prompt)

	var asset ImageAsset
	err = retry.Do(
		func() error {
			output, err := s.callProvider(ctx, settings, prompt)
			if err != nil {
				return err
			}

			data, err := s.normalize(ctx, output)
			if err != nil {
				return err
			}

			result, err := s.uploader.Upload(ctx, "books", data, ".webp")
			if err != nil {
				return fmt.Errorf("上传插画失败: %w", err)
			}

			asset = ImageAsset{URL: result.URL, Width: result.Width, Height: result.Height}
			return nil
		},
		retry.Attempts(maxImageAttempts),
		retry.RetryIf(func(err error) bool {
			_, ok := IsRateLimitError(err)
			return ok
		}),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			if rle, ok := IsRateLimitError(err); ok && rle.RetryAfter > 0 {
				return rle.RetryAfter
			}
			return s.retryDelay
		}),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return ImageAsset{}, err
	}

	logAIExchange("IMAGE", "response", asset.URL)
	return asset, nil
}

// callProvider 发起一次图片生成调用，返回 URL 或字节流两种形态之一。
func (s *ImageService) callProvider(ctx context.Context, settings SystemSettings, prompt string) (imageOutput, error) {
	payload := predictionRequest{
		Input: predictionInput{
			Prompt:        prompt,
			NumOutputs:    1,
			AspectRatio:   "1:1",
			OutputFormat:  "webp",
			OutputQuality: 90,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return imageOutput{}, fmt.Errorf("构造图片生成请求失败: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s/predictions", strings.TrimRight(s.baseURL, "/"), settings.ImageModel)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return imageOutput{}, fmt.Errorf("创建图片生成请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+settings.ImageAPIToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "wait")
	httpReq.Header.Set("User-Agent", "fablepress-ai/1.0")

	client := s.http
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return imageOutput{}, fmt.Errorf("请求图片生成接口失败: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return imageOutput{}, &RateLimitError{
			Message:    fmt.Sprintf("图片生成接口限流 (retry after %s)", retryAfter),
			RetryAfter: retryAfter,
			StatusCode: resp.StatusCode,
		}
	}

	// 服务端直接回传图片字节流时由调用方负责关闭
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "image/") || contentType == "application/octet-stream" {
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return imageOutput{}, fmt.Errorf("图片生成接口返回错误：%s", resp.Status)
		}
		return imageOutput{kind: imageOutputStream, stream: resp.Body}, nil
	}

	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return imageOutput{}, fmt.Errorf("读取图片生成响应失败: %w", err)
	}

	var prediction predictionResponse
	if err := json.Unmarshal(respBody, &prediction); err != nil {
		return imageOutput{}, fmt.Errorf("解析图片生成响应失败: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || prediction.Error != "" {
		errMsg := strings.TrimSpace(prediction.Error)
		if errMsg == "" {
			errMsg = strings.TrimSpace(prediction.Detail)
		}
		if errMsg == "" {
			errMsg = resp.Status
		}
		return imageOutput{}, fmt.Errorf("图片生成接口返回错误：%s", errMsg)
	}

	url, err := decodeOutputURL(prediction.Output)
	if err != nil {
		return imageOutput{}, err
	}

	return imageOutput{kind: imageOutputURL, url: url}, nil
}

// decodeOutputURL 兼容 output 为单条链接或链接数组两种返回。
func decodeOutputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("图片生成接口未返回结果")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && strings.TrimSpace(single) != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && strings.TrimSpace(many[0]) != "" {
		return many[0], nil
	}

	return "", errors.New("图片生成接口返回了无法识别的 output")
}

// normalize 把两种返回形态统一落成内存字节。
func (s *ImageService) normalize(ctx context.Context, output imageOutput) ([]byte, error) {
	switch output.kind {
	case imageOutputStream:
		defer output.stream.Close()
		// 多读 1 字节以区分“恰好达到上限”与“超限被截断”
		data, err := io.ReadAll(io.LimitReader(output.stream, maxImageBytes+1))
		if err != nil {
			return nil, fmt.Errorf("读取图片字节流失败: %w", err)
		}
		if len(data) > maxImageBytes {
			return nil, fmt.Errorf("图片字节流超过 %d 字节上限", maxImageBytes)
		}
		return data, nil
	case imageOutputURL:
		return s.fetchImage(ctx, output.url)
	default:
		return nil, errors.New("unknown image output kind")
	}
}

func (s *ImageService) fetchImage(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建图片下载请求失败: %w", err)
	}

	client := s.http
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("下载生成图片失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载生成图片失败：%s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("读取生成图片失败: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("生成图片超过 %d 字节上限", maxImageBytes)
	}
	return data, nil
}
