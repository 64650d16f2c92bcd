package router

import (
	"net/http"

	"github.com/fablepress/internal/handler"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// SetupRouter 装配全部路由：静态资源、公开浏览接口与登录后接口。
func SetupRouter(api *handler.API, sessionSecret, uploadDir, uploadURLPath string) *gin.Engine {
	r := gin.Default()

	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
	})
	r.Use(sessions.Sessions("fablepress_session", store))

	if uploadDir != "" && uploadURLPath != "" {
		r.Static(uploadURLPath, uploadDir)
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	auth := r.Group("/api/auth")
	{
		auth.POST("/signup", api.Signup)
		auth.POST("/login", api.Login)
		auth.POST("/logout", api.Logout)
	}

	// 公开浏览接口，不要求登录。
	public := r.Group("/api")
	{
		public.GET("/books/recent", api.ListRecentBooks)
		public.GET("/books/search", api.SearchBooks)
		public.GET("/books/slug/:slug", api.GetBookBySlug)
	}

	authed := r.Group("/api")
	authed.Use(api.AuthRequired())
	{
		authed.GET("/profile", api.GetProfile)
		authed.PUT("/profile", api.UpdateProfile)
		authed.GET("/books", api.ListBooks)
		authed.POST("/books/generate", api.GenerateBook)
		authed.DELETE("/books/:id", api.DeleteBook)
	}

	return r
}
