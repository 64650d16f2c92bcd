package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fablepress/internal/db"
	cache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

var (
	ErrBookNotFound  = errors.New("book not found")
	ErrBookForbidden = errors.New("book does not belong to this author")
	ErrEmptyStory    = errors.New("story has no chapters")
)

var slugStripPattern = regexp.MustCompile(`[^a-z0-9]+`)

const bookCacheTTL = 5 * time.Minute

// BookService wraps book related database operations.
type BookService struct {
	db    *gorm.DB
	cache *cache.Cache
}

// SaveResult carries the identifiers of a freshly persisted book.
type SaveResult struct {
	BookID uint
	Slug   string
}

// BookListResult aggregates paginated list data and counters.
type BookListResult struct {
	Books      []db.Book
	Total      int64
	TotalPages int
	Page       int
	PerPage    int
}

// NewBookService creates a BookService instance.
func NewBookService(gdb *gorm.DB) *BookService {
	return &BookService{
		db:    gdb,
		cache: cache.New(bookCacheTTL, 10*time.Minute),
	}
}

// Slugify 把标题转成 URL 安全的 slug：小写、非字母数字压成单个连字符、去掉首尾连字符。
func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugStripPattern.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// SaveStory persists an assembled story as one book row plus its chapter
// rows inside a single transaction, so readers never observe a partially
// chaptered book. Slug collisions against existing rows sharing the same
// prefix are resolved by appending a millisecond timestamp; concurrent
// writers hitting the same title in the same millisecond are not guarded
// beyond the unique index itself.
func (s *BookService) SaveStory(story IllustratedStory, authorID uint) (SaveResult, error) {
	if len(story.Chapters) == 0 {
		return SaveResult{}, ErrEmptyStory
	}

	base := Slugify(story.Title)
	if base == "" {
		base = "book"
	}

	var existing []string
	if err := s.db.Model(&db.Book{}).
		Where("slug LIKE ?", base+"%").
		Pluck("slug", &existing).Error; err != nil {
		return SaveResult{}, fmt.Errorf("check existing slugs: %w", err)
	}

	slug := base
	if len(existing) > 0 {
		slug = fmt.Sprintf("%s-%d", base, time.Now().UnixMilli())
	}

	book := db.Book{
		Title:            story.Title,
		Slug:             slug,
		Author:           s.authorName(authorID),
		AuthorID:         authorID,
		CoverURL:         story.CoverURL,
		CoverDescription: story.CoverDescription,
		CoverWidth:       story.CoverWidth,
		CoverHeight:      story.CoverHeight,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&book).Error; err != nil {
			return fmt.Errorf("insert book: %w", err)
		}

		chapters := make([]db.Chapter, len(story.Chapters))
		for i, chapter := range story.Chapters {
			chapters[i] = db.Chapter{
				BookID:      book.ID,
				Subtitle:    chapter.Subtitle,
				TextContent: chapter.TextContent,
				ImagePrompt: chapter.ImagePrompt,
				ImageURL:    chapter.ImageURL,
				Page:        chapter.Page,
			}
		}
		if err := tx.Create(&chapters).Error; err != nil {
			return fmt.Errorf("insert chapters: %w", err)
		}
		return nil
	})
	if err != nil {
		return SaveResult{}, err
	}

	return SaveResult{BookID: book.ID, Slug: book.Slug}, nil
}

// authorName resolves the display name for a book: profile name first,
// then the email local part, matching what readers see on the shelf.
func (s *BookService) authorName(authorID uint) string {
	var profile db.Profile
	if err := s.db.Where("user_id = ?", authorID).First(&profile).Error; err != nil {
		return "Unknown Author"
	}
	if strings.TrimSpace(profile.Name) != "" {
		return profile.Name
	}
	if at := strings.Index(profile.Email, "@"); at > 0 {
		return profile.Email[:at]
	}
	return "Unknown Author"
}

// GetBySlug fetches a book with its chapters ordered by page ascending.
// Results are cached briefly since published books never change.
func (s *BookService) GetBySlug(slug string) (*db.Book, error) {
	cacheKey := "book:" + slug
	if cached, ok := s.cache.Get(cacheKey); ok {
		book := cached.(db.Book)
		return &book, nil
	}

	var book db.Book
	err := s.db.
		Preload("Chapters", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("page ASC")
		}).
		Where("slug = ?", slug).
		First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("load book by slug: %w", err)
	}

	s.cache.Set(cacheKey, book, cache.DefaultExpiration)
	return &book, nil
}

// ListByAuthor returns the author's books newest first with pagination.
func (s *BookService) ListByAuthor(authorID uint, page, perPage int) (BookListResult, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 3
	}

	var total int64
	if err := s.db.Model(&db.Book{}).Where("author_id = ?", authorID).Count(&total).Error; err != nil {
		return BookListResult{}, fmt.Errorf("count books: %w", err)
	}

	var books []db.Book
	if err := s.db.
		Where("author_id = ?", authorID).
		Order("created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&books).Error; err != nil {
		return BookListResult{}, fmt.Errorf("list books: %w", err)
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	return BookListResult{
		Books:      books,
		Total:      total,
		TotalPages: totalPages,
		Page:       page,
		PerPage:    perPage,
	}, nil
}

// ListRecent returns the latest published books across all authors.
func (s *BookService) ListRecent(limit int) ([]db.Book, error) {
	if limit < 1 {
		limit = 12
	}
	var books []db.Book
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&books).Error; err != nil {
		return nil, fmt.Errorf("list recent books: %w", err)
	}
	return books, nil
}

// Search matches book titles against a keyword, newest first.
func (s *BookService) Search(keyword string, page, perPage int) (BookListResult, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 12
	}

	keyword = strings.TrimSpace(keyword)
	filter := func(tx *gorm.DB) *gorm.DB {
		if keyword == "" {
			return tx
		}
		return tx.Where("title LIKE ?", "%"+keyword+"%")
	}

	var total int64
	if err := filter(s.db.Model(&db.Book{})).Count(&total).Error; err != nil {
		return BookListResult{}, fmt.Errorf("count search results: %w", err)
	}

	var books []db.Book
	if err := filter(s.db).
		Order("created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&books).Error; err != nil {
		return BookListResult{}, fmt.Errorf("search books: %w", err)
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	return BookListResult{
		Books:      books,
		Total:      total,
		TotalPages: totalPages,
		Page:       page,
		PerPage:    perPage,
	}, nil
}

// Delete removes a book and its chapters after checking ownership.
// sqlite 默认不开启外键级联，这里显式删除章节。
func (s *BookService) Delete(bookID, authorID uint) error {
	var book db.Book
	if err := s.db.First(&book, bookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookNotFound
		}
		return fmt.Errorf("load book: %w", err)
	}
	if book.AuthorID != authorID {
		return ErrBookForbidden
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", book.ID).Delete(&db.Chapter{}).Error; err != nil {
			return fmt.Errorf("delete chapters: %w", err)
		}
		if err := tx.Delete(&book).Error; err != nil {
			return fmt.Errorf("delete book: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Delete("book:" + book.Slug)
	return nil
}
