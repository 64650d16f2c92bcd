package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeStoryGenerator struct {
	draft StoryDraft
	err   error
	calls int32
}

func (f *fakeStoryGenerator) GenerateStory(ctx context.Context, topic string, chapterCount int) (StoryDraft, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return StoryDraft{}, f.err
	}
	return f.draft, nil
}

type fakeImageGenerator struct {
	mu      sync.Mutex
	calls   []string
	starts  []time.Time
	delays  map[string]time.Duration
	failFor string
}

func (f *fakeImageGenerator) GenerateImage(ctx context.Context, description string) (ImageAsset, error) {
	f.mu.Lock()
	f.calls = append(f.calls, description)
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()

	if d, ok := f.delays[description]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ImageAsset{}, ctx.Err()
		}
	}
	if f.failFor != "" && description == f.failFor {
		return ImageAsset{}, errors.New("image provider exploded")
	}
	return ImageAsset{URL: "url-for:" + description, Width: 1024, Height: 1024}, nil
}

func (f *fakeImageGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// chapterStarts 返回章节插画（排除封面）的发起时刻。
func (f *fakeImageGenerator) chapterStarts(coverDescription string) []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	var starts []time.Time
	for i, description := range f.calls {
		if description != coverDescription {
			starts = append(starts, f.starts[i])
		}
	}
	return starts
}

func testDraft(chapterCount int) StoryDraft {
	chapters := make([]DraftChapter, chapterCount)
	for i := range chapters {
		chapters[i] = DraftChapter{
			SubTitle:         fmt.Sprintf("Chapter %d", i+1),
			TextContent:      fmt.Sprintf("Text %d", i+1),
			ImageDescription: fmt.Sprintf("illustration-%d", i+1),
			Page:             i + 1,
		}
	}
	return StoryDraft{
		BookTitle:            "The Three Little Acorns learn about AI",
		BookCoverDescription: "cover-illustration",
		Chapters:             chapters,
	}
}

func TestGeneratorServiceBuildsStoryInOrder(t *testing.T) {
	// 让早期章节最慢，验证结果顺序与完成顺序解耦
	images := &fakeImageGenerator{delays: map[string]time.Duration{
		"illustration-1": 30 * time.Millisecond,
		"illustration-2": 10 * time.Millisecond,
		"illustration-3": 1 * time.Millisecond,
	}}
	stories := &fakeStoryGenerator{draft: testDraft(3)}
	svc := NewGeneratorService(stories, images, 0)

	story, err := svc.BuildIllustratedStory(context.Background(), "acorns", 3)
	if err != nil {
		t.Fatalf("build story: %v", err)
	}

	if story.CoverURL != "url-for:cover-illustration" {
		t.Fatalf("unexpected cover url %q", story.CoverURL)
	}
	if len(story.Chapters) != 3 {
		t.Fatalf("expected 3 chapters, got %d", len(story.Chapters))
	}
	for i, chapter := range story.Chapters {
		wantURL := fmt.Sprintf("url-for:illustration-%d", i+1)
		if chapter.ImageURL != wantURL {
			t.Fatalf("chapter %d: expected %q, got %q", i, wantURL, chapter.ImageURL)
		}
		if chapter.Page != i+1 {
			t.Fatalf("chapter %d: expected page %d, got %d", i, i+1, chapter.Page)
		}
	}
	// 封面 1 次 + 章节 3 次
	if got := images.callCount(); got != 4 {
		t.Fatalf("expected 4 image calls, got %d", got)
	}
}

func TestGeneratorServiceExampleScenario(t *testing.T) {
	images := &fakeImageGenerator{}
	stories := &fakeStoryGenerator{draft: testDraft(2)}
	svc := NewGeneratorService(stories, images, 0)

	story, err := svc.BuildIllustratedStory(context.Background(), "Three little acorns learn about AI", 2)
	if err != nil {
		t.Fatalf("build story: %v", err)
	}
	if got := images.callCount(); got != 3 {
		t.Fatalf("expected 3 image calls (1 cover + 2 chapters), got %d", got)
	}
	if len(story.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(story.Chapters))
	}
}

func TestGeneratorServiceFailFastOnChapterImage(t *testing.T) {
	images := &fakeImageGenerator{failFor: "illustration-2"}
	stories := &fakeStoryGenerator{draft: testDraft(3)}
	svc := NewGeneratorService(stories, images, 0)

	_, err := svc.BuildIllustratedStory(context.Background(), "acorns", 3)
	if err == nil {
		t.Fatal("expected pipeline failure when one chapter image fails")
	}
	if !strings.Contains(err.Error(), "第 2 章") {
		t.Fatalf("error should name the failing chapter, got %v", err)
	}
}

func TestGeneratorServiceTextFailureIsTerminal(t *testing.T) {
	images := &fakeImageGenerator{}
	stories := &fakeStoryGenerator{err: errors.New("model unavailable")}
	svc := NewGeneratorService(stories, images, 0)

	if _, err := svc.BuildIllustratedStory(context.Background(), "acorns", 2); err == nil {
		t.Fatal("expected error when text generation fails")
	}
	if got := images.callCount(); got != 0 {
		t.Fatalf("no image calls expected after text failure, got %d", got)
	}
}

func TestGeneratorServiceCoverFailureIsTerminal(t *testing.T) {
	images := &fakeImageGenerator{failFor: "cover-illustration"}
	stories := &fakeStoryGenerator{draft: testDraft(2)}
	svc := NewGeneratorService(stories, images, 0)

	if _, err := svc.BuildIllustratedStory(context.Background(), "acorns", 2); err == nil {
		t.Fatal("expected error when cover generation fails")
	}
	// 封面失败后不应发起章节插画
	if got := images.callCount(); got != 1 {
		t.Fatalf("expected exactly 1 image call, got %d", got)
	}
}

func TestGeneratorServiceRejectsEmptyDraft(t *testing.T) {
	images := &fakeImageGenerator{}
	stories := &fakeStoryGenerator{draft: StoryDraft{BookTitle: "Title"}}
	svc := NewGeneratorService(stories, images, 0)

	if _, err := svc.BuildIllustratedStory(context.Background(), "acorns", 2); err == nil {
		t.Fatal("expected error for draft without chapters")
	}
}

func TestGeneratorServiceThrottlesChapterLaunches(t *testing.T) {
	const interval = 30 * time.Millisecond
	images := &fakeImageGenerator{}
	stories := &fakeStoryGenerator{draft: testDraft(3)}
	svc := NewGeneratorService(stories, images, interval)

	if _, err := svc.BuildIllustratedStory(context.Background(), "acorns", 3); err != nil {
		t.Fatalf("build story: %v", err)
	}

	starts := images.chapterStarts("cover-illustration")
	if len(starts) != 3 {
		t.Fatalf("expected 3 chapter launches, got %d", len(starts))
	}

	earliest, latest := starts[0], starts[0]
	for _, at := range starts[1:] {
		if at.Before(earliest) {
			earliest = at
		}
		if at.After(latest) {
			latest = at
		}
	}
	// 令牌桶容量为 1：首次发起不等待，其后每次至少间隔 interval，
	// 三次发起的时间跨度不应小于 2 个间隔（留出调度误差）
	if spread := latest.Sub(earliest); spread < 2*interval-10*time.Millisecond {
		t.Fatalf("launches too close together, spread %v with interval %v", spread, interval)
	}
}
