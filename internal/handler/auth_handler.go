package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fablepress/internal/db"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup 注册新用户并自动登录，同时建立对应的作者档案。
func (a *API) Signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		respondError(c, http.StatusBadRequest, "邮箱格式不正确")
		return
	}
	if len(req.Password) < 6 {
		respondError(c, http.StatusBadRequest, "密码至少需要 6 位")
		return
	}

	var existing db.User
	err := a.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		respondError(c, http.StatusConflict, "该邮箱已被注册")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusInternalServerError, "注册失败")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "注册失败")
		return
	}

	user := db.User{Email: email, Password: string(hash)}
	if err := a.db.Create(&user).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "注册失败")
		return
	}

	if _, err := a.profiles.GetOrCreate(user.ID, email, strings.TrimSpace(req.Name)); err != nil {
		respondError(c, http.StatusInternalServerError, "注册失败")
		return
	}

	if err := saveSession(c, user.ID, email); err != nil {
		respondError(c, http.StatusInternalServerError, "会话写入失败")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"userId": user.ID, "email": email})
}

// Login 校验邮箱密码并写入会话。
func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	var user db.User
	if err := a.db.Where("email = ?", email).First(&user).Error; err != nil {
		respondError(c, http.StatusUnauthorized, "邮箱或密码错误")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		respondError(c, http.StatusUnauthorized, "邮箱或密码错误")
		return
	}

	if err := saveSession(c, user.ID, user.Email); err != nil {
		respondError(c, http.StatusInternalServerError, "会话写入失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": user.ID, "email": user.Email})
}

// Logout 清空会话。
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "会话写入失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已退出登录"})
}

// AuthRequired 保护需要登录的接口。
func (a *API) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, ok := currentUser(c); !ok {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}
		c.Next()
	}
}

func saveSession(c *gin.Context, userID uint, email string) error {
	session := sessions.Default(c)
	session.Set(sessionUserIDKey, userID)
	session.Set(sessionEmailKey, email)
	return session.Save()
}
