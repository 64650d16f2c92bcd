package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DraftChapter 是文本模型返回的单个章节，尚未配图。
type DraftChapter struct {
	SubTitle         string `json:"subTitle"`
	TextContent      string `json:"textContent"`
	ImageDescription string `json:"imageDescription"`
	Page             int    `json:"page"`
}

// StoryDraft 是文本模型返回的完整故事草稿，直接按模型约定的 JSON 结构反序列化。
type StoryDraft struct {
	BookTitle            string         `json:"bookTitle"`
	BookCoverDescription string         `json:"bookCoverDescription"`
	Chapters             []DraftChapter `json:"chapters"`
}

// StoryGenerator 定义故事草稿生成能力，便于在编排层注入不同实现。
type StoryGenerator interface {
	GenerateStory(ctx context.Context, topic string, chapterCount int) (StoryDraft, error)
}

type generateContentRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StoryService 调用文本生成模型，把自由主题转换成结构化的故事草稿。
type StoryService struct {
	settings *SystemSettingService
	http     httpDoer
	baseURL  string
}

// NewStoryService 构造默认的 StoryService。
func NewStoryService(settings *SystemSettingService) *StoryService {
	return &StoryService{
		settings: settings,
		http:     &http.Client{Timeout: 120 * time.Second},
		baseURL:  "https://generativelanguage.googleapis.com/v1beta",
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *StoryService) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.http = &http.Client{Timeout: 120 * time.Second}
		return
	}
	s.http = client
}

// SetBaseURL 覆盖默认的文本模型 API 地址。
func (s *StoryService) SetBaseURL(base string) {
	s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// BuildStoryPrompt 组装完整的生成提示词，把主题与目标章节数嵌入指令文本。
// 章节数只作为指令传给模型，由模型负责遵守。
func BuildStoryPrompt(topic string, chapterCount int) string {
	var builder strings.Builder
	builder.WriteString("Your job is to write a kids story book.\n")
	builder.WriteString(fmt.Sprintf("The topic of the story is: %s\n", strings.TrimSpace(topic)))
	builder.WriteString(fmt.Sprintf("The story must have exactly %d chapters in an array format.\n\n", chapterCount))
	builder.WriteString(`I need the response in JSON format with the following details:
- book title
- book cover description
- book chapters in an array format with each object containing story
subTitle, textContent, page and imageDescription to generate
a vibrant, cartoon-style illustration.

Here is an example of the JSON format:
{
  "bookTitle": "The Three Little Acorns learn about AI",
  "bookCoverDescription": "A vibrant, cartoon-style illustration of three little acorns learning about AI under a large oak tree, with glowing futuristic elements",
  "chapters": [
    {
      "subTitle": "A Curious Acorn",
      "textContent": "Once upon a time, in a cozy oak tree, there were three little acorns...",
      "imageDescription": "A vibrant, cartoon-style illustration featuring a curious acorn looking up at a computer screen",
      "page": 1
    }
  ]
}`)
	return builder.String()
}

// GenerateStory 把主题提交给文本模型并解析返回的 JSON 故事草稿。
// 本方法不做任何重试：传输失败、非 JSON 响应或结构不符都会直接
// 返回错误，由调用方决定是否重新发起整条流水线。
func (s *StoryService) GenerateStory(ctx context.Context, topic string, chapterCount int) (StoryDraft, error) {
	settings, err := s.settings.GetSettings()
	if err != nil {
		return StoryDraft{}, fmt.Errorf("读取系统设置失败: %w", err)
	}
	if strings.TrimSpace(settings.TextAPIKey) == "" {
		return StoryDraft{}, ErrAIAPIKeyMissing
	}

	prompt := BuildStoryPrompt(topic, chapterCount)
	logAIExchange("STORY", "prompt", prompt)

	payload := generateContentRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return StoryDraft{}, fmt.Errorf("构造请求失败: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(s.baseURL, "/"), settings.TextModel, settings.TextAPIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return StoryDraft{}, fmt.Errorf("创建文本生成请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "fablepress-ai/1.0")

	client := s.http
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return StoryDraft{}, fmt.Errorf("请求文本生成接口失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return StoryDraft{}, fmt.Errorf("读取文本生成响应失败: %w", err)
	}

	var completion generateContentResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return StoryDraft{}, fmt.Errorf("解析文本生成响应失败: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		errMsg := strings.TrimSpace(completion.Error.Message)
		if errMsg == "" {
			errMsg = resp.Status
		}
		return StoryDraft{}, fmt.Errorf("文本生成接口返回错误：%s", errMsg)
	}

	if len(completion.Candidates) == 0 || len(completion.Candidates[0].Content.Parts) == 0 {
		return StoryDraft{}, fmt.Errorf("文本生成接口未返回结果")
	}

	text := strings.TrimSpace(completion.Candidates[0].Content.Parts[0].Text)
	logAIExchange("STORY", "response", text)

	var draft StoryDraft
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		return StoryDraft{}, fmt.Errorf("解析故事草稿失败: %w", err)
	}

	return draft, nil
}
