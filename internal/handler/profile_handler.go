package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/fablepress/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var profileMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

var profileSanitizer = bluemonday.UGCPolicy()

type profileResponse struct {
	UserID    uint   `json:"userId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	About     string `json:"about"`
	AboutHTML string `json:"aboutHtml"`
	Role      string `json:"role"`
}

// GetProfile 返回当前用户档案，档案缺失时按邮箱回填创建。
func (a *API) GetProfile(c *gin.Context) {
	userID, email, _ := currentUser(c)

	profile, err := a.profiles.GetOrCreate(userID, email, "")
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取档案失败")
		return
	}

	aboutHTML, err := renderMarkdown(profile.About)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "渲染档案失败")
		return
	}

	c.JSON(http.StatusOK, profileResponse{
		UserID:    profile.UserID,
		Email:     profile.Email,
		Name:      profile.Name,
		About:     profile.About,
		AboutHTML: aboutHTML,
		Role:      profile.Role,
	})
}

// UpdateProfile 局部更新档案字段，未提交的字段保持不变。
func (a *API) UpdateProfile(c *gin.Context) {
	userID, _, _ := currentUser(c)

	var input service.ProfileInput
	if !bindJSON(c, &input) {
		return
	}

	profile, err := a.profiles.Update(userID, input)
	if err != nil {
		if errors.Is(err, service.ErrProfileNotFound) {
			respondError(c, http.StatusNotFound, "档案不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "更新档案失败")
		return
	}

	c.JSON(http.StatusOK, profileResponse{
		UserID: profile.UserID,
		Email:  profile.Email,
		Name:   profile.Name,
		About:  profile.About,
		Role:   profile.Role,
	})
}

func renderMarkdown(content string) (string, error) {
	if content == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := profileMarkdown.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return profileSanitizer.Sanitize(buf.String()), nil
}
