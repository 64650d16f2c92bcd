package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fablepress/internal/db"
	"github.com/fablepress/internal/service"
	"github.com/fablepress/internal/storage"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeUploader struct {
	mu      sync.Mutex
	uploads int
}

func (f *fakeUploader) Upload(_ context.Context, folder string, data []byte, ext string) (storage.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return storage.UploadResult{URL: fmt.Sprintf("/static/uploads/%s/fake-%d%s", folder, f.uploads, ext)}, nil
}

type fakeBuilder struct {
	story  service.IllustratedStory
	err    error
	topics []string
	counts []int
}

func (f *fakeBuilder) BuildIllustratedStory(_ context.Context, topic string, chapterCount int) (service.IllustratedStory, error) {
	f.topics = append(f.topics, topic)
	f.counts = append(f.counts, chapterCount)
	if f.err != nil {
		return service.IllustratedStory{}, f.err
	}
	return f.story, nil
}

func sampleStory(title string, chapters int) service.IllustratedStory {
	story := service.IllustratedStory{
		Title:            title,
		CoverDescription: "a watercolor cover",
		CoverURL:         "/static/uploads/books/cover.webp",
	}
	for i := 1; i <= chapters; i++ {
		story.Chapters = append(story.Chapters, service.IllustratedChapter{
			Subtitle:    fmt.Sprintf("Chapter %d", i),
			TextContent: fmt.Sprintf("Once upon a time, part %d.", i),
			ImagePrompt: fmt.Sprintf("scene %d", i),
			ImageURL:    fmt.Sprintf("/static/uploads/books/ch-%d.webp", i),
			Page:        i,
		})
	}
	return story
}

func setupAPITest(t *testing.T) (*API, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:handler-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := gdb.AutoMigrate(&db.User{}, &db.Profile{}, &db.Book{}, &db.Chapter{}, &db.SystemSetting{}); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}

	// 测试不节流，避免并行插画的发起间隔拖慢用例
	return NewAPI(gdb, &fakeUploader{}, 0), gdb
}

func newTestEngine(api *API) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	store := cookie.NewStore([]byte("test-secret"))
	r.Use(sessions.Sessions("fablepress_session", store))

	r.POST("/api/auth/signup", api.Signup)
	r.POST("/api/auth/login", api.Login)
	r.POST("/api/auth/logout", api.Logout)

	r.GET("/api/books/recent", api.ListRecentBooks)
	r.GET("/api/books/search", api.SearchBooks)
	r.GET("/api/books/slug/:slug", api.GetBookBySlug)

	authed := r.Group("/api")
	authed.Use(api.AuthRequired())
	authed.GET("/profile", api.GetProfile)
	authed.PUT("/profile", api.UpdateProfile)
	authed.GET("/books", api.ListBooks)
	authed.POST("/books/generate", api.GenerateBook)
	authed.DELETE("/books/:id", api.DeleteBook)

	return r
}

// testClient 在多次请求之间携带会话 Cookie，模拟同一个浏览器。
type testClient struct {
	engine  *gin.Engine
	cookies []*http.Cookie
}

func newTestClient(api *API) *testClient {
	return &testClient{engine: newTestEngine(api)}
}

func (tc *testClient) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("序列化请求体失败: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range tc.cookies {
		req.AddCookie(ck)
	}

	w := httptest.NewRecorder()
	tc.engine.ServeHTTP(w, req)

	if set := w.Result().Cookies(); len(set) > 0 {
		tc.cookies = set
	}
	return w
}

func (tc *testClient) signup(t *testing.T, email, password, name string) {
	t.Helper()
	w := tc.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"email":    email,
		"password": password,
		"name":     name,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("注册失败: status=%d body=%s", w.Code, w.Body.String())
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("解析响应失败: %v (body=%s)", err, w.Body.String())
	}
}
