package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielsherratt/webchat/internal/auth"
	"github.com/danielsherratt/webchat/internal/blob"
	"github.com/danielsherratt/webchat/internal/channel"
	"github.com/danielsherratt/webchat/internal/config"
	"github.com/danielsherratt/webchat/internal/metrics"
	"github.com/danielsherratt/webchat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层和对象存储。
type Handler struct {
	userSvc *service.UserService
	msgSvc  *service.MessageService
	files   blob.Store
	cfg     config.Config
}

func NewHandler(userSvc *service.UserService, msgSvc *service.MessageService, files blob.Store, cfg config.Config) *Handler {
	return &Handler{userSvc: userSvc, msgSvc: msgSvc, files: files, cfg: cfg}
}

func validCredentials(username, password string) bool {
	return len(username) >= 2 && len(username) <= 64 && len(password) >= 4 && len(password) <= 128
}

// Signup 注册普通成员账号。
func (h *Handler) Signup(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if !validCredentials(req.Username, req.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username or password"})
		return
	}
	user, err := h.userSvc.Register(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("signup")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Login 校验凭证并下发会话 cookie；body 里同时返回 token
// 供非浏览器客户端走 Bearer 头。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	metrics.LoginsTotal.Inc()
	maxAge := h.cfg.SessionTTLHours * 3600
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, result.Token, maxAge, "/", "", h.cfg.Env == "prod", true)
	c.JSON(http.StatusOK, gin.H{"token": result.Token, "user": result.User})
}

// Logout 销毁当前会话并清掉 cookie，token 不存在时同样返回 204。
func (h *Handler) Logout(c *gin.Context) {
	token := auth.TokenFromRequest(c)
	if err := h.userSvc.Logout(token); err != nil {
		log.Error().Err(err).Msg("logout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.SetCookie(auth.CookieName, "", -1, "/", "", h.cfg.Env == "prod", true)
	c.Status(http.StatusNoContent)
}

// Auth 返回当前会话身份，客户端刷新页面后用它恢复状态。
func (h *Handler) Auth(c *gin.Context) {
	c.JSON(http.StatusOK, auth.GetIdentity(c))
}

func parseChannelParam(c *gin.Context) (channel.Channel, bool) {
	ch, err := channel.Parse(c.Query("channel"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
		return channel.Channel{}, false
	}
	return ch, true
}

// ListMessages 返回频道消息的完整快照；这是轮询同步的唯一读取口。
// 显式传 limit 时退化为分页窗口。
func (h *Handler) ListMessages(c *gin.Context) {
	ch, ok := parseChannelParam(c)
	if !ok {
		return
	}
	var win service.Window
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		win.Limit = limit
		if bid := c.Query("before_id"); bid != "" {
			if v, err := strconv.Atoi(bid); err == nil && v > 0 {
				win.BeforeID = uint(v)
			}
		}
	}
	msgs, err := h.msgSvc.List(auth.GetIdentity(c), ch, win)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		log.Error().Err(err).Str("channel", ch.Key()).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// PostMessage 追加一条消息。
func (h *Handler) PostMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
		Channel string `json:"channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(req.Content) == "" || len(req.Content) > 4000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content"})
		return
	}
	ch, err := channel.Parse(req.Channel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
		return
	}
	msg, err := h.msgSvc.Append(auth.GetIdentity(c), ch, req.Content)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		log.Error().Err(err).Str("channel", ch.Key()).Msg("append message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to post message"})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// PinMessage 翻转消息的置顶标记，管理员专属。
func (h *Handler) PinMessage(c *gin.Context) {
	var req struct {
		ID     uint  `json:"id"`
		Pinned *bool `json:"pinned"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == 0 || req.Pinned == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid id or pinned flag"})
		return
	}
	if err := h.msgSvc.SetPinned(auth.GetIdentity(c), req.ID, *req.Pinned); err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		default:
			log.Error().Err(err).Uint("id", req.ID).Msg("pin message")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to pin message"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteMessages 删除单条消息（?id=）或清空全部消息（?all=true）。
func (h *Handler) DeleteMessages(c *gin.Context) {
	ident := auth.GetIdentity(c)
	if c.Query("all") == "true" {
		if err := h.msgSvc.DeleteAll(ident); err != nil {
			if errors.Is(err, service.ErrForbidden) {
				c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
			log.Error().Err(err).Msg("delete all messages")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete messages"})
			return
		}
		c.Status(http.StatusNoContent)
		return
	}
	id, err := strconv.Atoi(c.Query("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid id"})
		return
	}
	if err := h.msgSvc.DeleteOne(ident, uint(id)); err != nil {
		if errors.Is(err, service.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		log.Error().Err(err).Int("id", id).Msg("delete message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}
	c.Status(http.StatusNoContent)
}

// SharedFiles 返回频道内共享文件的派生视图。
func (h *Handler) SharedFiles(c *gin.Context) {
	ch, ok := parseChannelParam(c)
	if !ok {
		return
	}
	files, err := h.msgSvc.SharedFiles(auth.GetIdentity(c), ch)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		log.Error().Err(err).Str("channel", ch.Key()).Msg("shared files")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}
	c.JSON(http.StatusOK, files)
}

func (h *Handler) canUpload(c *gin.Context) bool {
	if h.cfg.UploadPolicy == config.UploadPolicyAny {
		return true
	}
	return channel.Resolve(auth.GetIdentity(c), channel.Channel{Kind: channel.Broadcast}).Moderate
}

// Upload 把文件字节交给外部对象存储，返回消息里可引用的 key 和 url。
// 授权策略由 UPLOAD_POLICY 决定，默认仅管理员。
func (h *Handler) Upload(c *gin.Context) {
	if !h.canUpload(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}
	src, err := file.Open()
	if err != nil {
		log.Error().Err(err).Str("filename", file.Filename).Msg("open upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	defer src.Close()

	key := blob.Key(file.Filename)
	contentType := file.Header.Get("Content-Type")
	if err := h.files.Put(c.Request.Context(), key, contentType, src); err != nil {
		log.Error().Err(err).Str("key", key).Msg("put object")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key, "filename": file.Filename, "url": h.files.URL(key)})
}

// ListUploads 列出对象存储里的全部文件，管理员专属。
func (h *Handler) ListUploads(c *gin.Context) {
	if !channel.Resolve(auth.GetIdentity(c), channel.Channel{Kind: channel.Broadcast}).Moderate {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	keys, err := h.files.List(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("list objects")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}
	type object struct {
		Key      string `json:"key"`
		Filename string `json:"filename"`
		URL      string `json:"url"`
	}
	out := make([]object, 0, len(keys))
	for _, key := range keys {
		out = append(out, object{Key: key, Filename: blob.Filename(key), URL: h.files.URL(key)})
	}
	c.JSON(http.StatusOK, out)
}

// DeleteUpload 从对象存储删除文件，管理员专属。
func (h *Handler) DeleteUpload(c *gin.Context) {
	if !channel.Resolve(auth.GetIdentity(c), channel.Channel{Kind: channel.Broadcast}).Moderate {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing key"})
		return
	}
	if err := h.files.Delete(c.Request.Context(), key); err != nil {
		log.Error().Err(err).Str("key", key).Msg("delete object")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete file"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListUsers 返回全部用户，管理员专属。
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.userSvc.List(auth.GetIdentity(c))
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		log.Error().Err(err).Msg("list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// CreateUser 由管理员创建账号。
func (h *Handler) CreateUser(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if !validCredentials(req.Username, req.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username or password"})
		return
	}
	if req.Role == "" {
		req.Role = "member"
	}
	user, err := h.userSvc.Create(auth.GetIdentity(c), req.Username, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
		default:
			log.Error().Err(err).Str("username", req.Username).Msg("create user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		}
		return
	}
	c.JSON(http.StatusCreated, user)
}

// UpdateUser 由管理员修改账号；空字段保持不变。
func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid id"})
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	upd := service.UserUpdate{Username: strings.TrimSpace(req.Username), Password: req.Password, Role: req.Role}
	if err := h.userSvc.Update(auth.GetIdentity(c), uint(id), upd); err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
		default:
			log.Error().Err(err).Int("id", id).Msg("update user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteUser 由管理员删除账号并销毁其会话。
func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid id"})
		return
	}
	if err := h.userSvc.Delete(auth.GetIdentity(c), uint(id)); err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			log.Error().Err(err).Int("id", id).Msg("delete user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// ChangePassword 用户修改自己的密码。
func (h *Handler) ChangePassword(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	if err := h.userSvc.ChangePassword(auth.GetIdentity(c), req.Password); err != nil {
		log.Error().Err(err).Msg("change password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change password"})
		return
	}
	c.Status(http.StatusNoContent)
}
