package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const sessionUserIDKey = "user_id"
const sessionEmailKey = "email"

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数格式错误")
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "无效的 ID")
		return 0, false
	}
	return uint(id), true
}

// currentUser 从会话中读取登录用户，未登录时返回 false。
func currentUser(c *gin.Context) (uint, string, bool) {
	session := sessions.Default(c)
	rawID := session.Get(sessionUserIDKey)
	id, ok := rawID.(uint)
	if !ok || id == 0 {
		return 0, "", false
	}
	email, _ := session.Get(sessionEmailKey).(string)
	return id, email, true
}
