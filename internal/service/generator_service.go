package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// IllustratedChapter 是配图完成的章节。
type IllustratedChapter struct {
	Subtitle    string
	TextContent string
	ImagePrompt string
	ImageURL    string
	Page        int
}

// IllustratedStory 是一次流水线调用装配出的完整故事，仅由本次调用持有，
// 交给持久化层落库后即被丢弃。
type IllustratedStory struct {
	Title            string
	CoverDescription string
	CoverURL         string
	CoverWidth       int
	CoverHeight      int
	Chapters         []IllustratedChapter
}

// StoryBuilder 定义完整的故事编排能力，便于在 HTTP 层注入假实现。
type StoryBuilder interface {
	BuildIllustratedStory(ctx context.Context, topic string, chapterCount int) (IllustratedStory, error)
}

// GeneratorService 按固定顺序编排流水线：文本草稿、封面插画、
// 并行的章节插画，最后按章节原始顺序合并结果。
type GeneratorService struct {
	stories  StoryGenerator
	images   ImageGenerator
	interval time.Duration
}

// NewGeneratorService 构造 GeneratorService。interval 大于 0 时会在
// 并行章节插画之间做节流，避免一次性打满图片服务的配额。
func NewGeneratorService(stories StoryGenerator, images ImageGenerator, interval time.Duration) *GeneratorService {
	return &GeneratorService{
		stories:  stories,
		images:   images,
		interval: interval,
	}
}

// BuildIllustratedStory 生成一个完整的配图故事。任一环节失败即整体失败，
// 不会产出缺图的半成品；已经发起的并行调用不会被主动取消，由调用方
// 容忍这部分浪费的工作量。
func (g *GeneratorService) BuildIllustratedStory(ctx context.Context, topic string, chapterCount int) (IllustratedStory, error) {
	draft, err := g.stories.GenerateStory(ctx, topic, chapterCount)
	if err != nil {
		return IllustratedStory{}, fmt.Errorf("生成故事草稿失败: %w", err)
	}
	if strings.TrimSpace(draft.BookTitle) == "" || len(draft.Chapters) == 0 {
		return IllustratedStory{}, fmt.Errorf("故事草稿缺少标题或章节")
	}

	cover, err := g.images.GenerateImage(ctx, draft.BookCoverDescription)
	if err != nil {
		return IllustratedStory{}, fmt.Errorf("生成封面插画失败: %w", err)
	}

	// 章节插画并行生成，结果按原始章节下标写回，与完成顺序无关
	assets := make([]ImageAsset, len(draft.Chapters))
	eg, egCtx := errgroup.WithContext(ctx)

	var limiter *rate.Limiter
	if g.interval > 0 {
		limiter = rate.NewLimiter(rate.Every(g.interval), 1)
	}

	for i, chapter := range draft.Chapters {
		i, chapter := i, chapter
		eg.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(egCtx); err != nil {
					return err
				}
			}

			asset, err := g.images.GenerateImage(egCtx, chapter.ImageDescription)
			if err != nil {
				return fmt.Errorf("第 %d 章插画生成失败: %w", i+1, err)
			}

			assets[i] = asset
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return IllustratedStory{}, err
	}

	story := IllustratedStory{
		Title:            draft.BookTitle,
		CoverDescription: draft.BookCoverDescription,
		CoverURL:         cover.URL,
		CoverWidth:       cover.Width,
		CoverHeight:      cover.Height,
		Chapters:         make([]IllustratedChapter, len(draft.Chapters)),
	}
	for i, chapter := range draft.Chapters {
		page := chapter.Page
		if page <= 0 {
			page = i + 1
		}
		story.Chapters[i] = IllustratedChapter{
			Subtitle:    chapter.SubTitle,
			TextContent: chapter.TextContent,
			ImagePrompt: chapter.ImageDescription,
			ImageURL:    assets[i].URL,
			Page:        page,
		}
	}

	return story, nil
}
