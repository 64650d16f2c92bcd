package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/fablepress/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	defaultStoryPages = 5
	maxStoryPages     = 10
	defaultPerPage    = 12
	maxPerPage        = 50
)

type generateBookRequest struct {
	Prompt string `json:"prompt"`
	Pages  int    `json:"pages"`
}

// GenerateBook 生成完整绘本并入库：先出文稿，再并发出插画，最后一次性落库。
func (a *API) GenerateBook(c *gin.Context) {
	userID, _, _ := currentUser(c)

	var req generateBookRequest
	if !bindJSON(c, &req) {
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		respondError(c, http.StatusBadRequest, "请填写故事主题")
		return
	}
	pages := req.Pages
	if pages <= 0 {
		pages = defaultStoryPages
	}
	if pages > maxStoryPages {
		pages = maxStoryPages
	}

	story, err := a.generator.BuildIllustratedStory(c.Request.Context(), prompt, pages)
	if err != nil {
		if errors.Is(err, service.ErrAIAPIKeyMissing) {
			respondError(c, http.StatusServiceUnavailable, "AI 服务未配置密钥")
			return
		}
		respondError(c, http.StatusBadGateway, "生成故事失败: "+err.Error())
		return
	}

	result, err := a.books.SaveStory(story, userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "保存绘本失败")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"bookId": result.BookID, "slug": result.Slug})
}

// ListBooks 分页返回当前用户的绘本。
func (a *API) ListBooks(c *gin.Context) {
	userID, _, _ := currentUser(c)

	page, perPage := paginationQuery(c)
	result, err := a.books.ListByAuthor(userID, page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取绘本列表失败")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetBookBySlug 通过 slug 读取绘本详情，章节按页码升序返回。
func (a *API) GetBookBySlug(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		respondError(c, http.StatusBadRequest, "无效的 slug")
		return
	}

	book, err := a.books.GetBySlug(slug)
	if err != nil {
		if errors.Is(err, service.ErrBookNotFound) {
			respondError(c, http.StatusNotFound, "绘本不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "读取绘本失败")
		return
	}
	c.JSON(http.StatusOK, book)
}

// ListRecentBooks 返回最新发布的绘本，供首页展示。
func (a *API) ListRecentBooks(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "12"))
	if err != nil || limit <= 0 {
		limit = 12
	}
	if limit > maxPerPage {
		limit = maxPerPage
	}

	books, err := a.books.ListRecent(limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取绘本失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

// SearchBooks 按标题关键字检索绘本。
func (a *API) SearchBooks(c *gin.Context) {
	keyword := strings.TrimSpace(c.Query("q"))
	if keyword == "" {
		respondError(c, http.StatusBadRequest, "请输入搜索关键字")
		return
	}

	page, perPage := paginationQuery(c)
	result, err := a.books.Search(keyword, page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "搜索失败")
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteBook 删除本人绘本，连同全部章节。
func (a *API) DeleteBook(c *gin.Context) {
	userID, _, _ := currentUser(c)

	bookID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := a.books.Delete(bookID, userID); err != nil {
		switch {
		case errors.Is(err, service.ErrBookNotFound):
			respondError(c, http.StatusNotFound, "绘本不存在")
		case errors.Is(err, service.ErrBookForbidden):
			respondError(c, http.StatusForbidden, "无权删除该绘本")
		default:
			respondError(c, http.StatusInternalServerError, "删除失败")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}

func paginationQuery(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("perPage", strconv.Itoa(defaultPerPage)))
	if err != nil || perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}
