package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielsherratt/webchat/internal/models"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrUnauthenticated 表示请求没有携带可解析的有效会话。
var ErrUnauthenticated = errors.New("unauthenticated")

// CookieName 是浏览器客户端携带会话 token 的 cookie 名。
const CookieName = "token"

const identityKey = "identity"

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func VerifyPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NewSessionToken 生成不可猜测的不透明会话 token。
func NewSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CreateSession 为用户签发一个新会话；同一用户允许多个并发会话。
func CreateSession(db *gorm.DB, userID uint, ttl time.Duration) (*models.Session, error) {
	token, err := NewSessionToken()
	if err != nil {
		return nil, err
	}
	s := models.Session{Token: token, UserID: userID, ExpiresAt: time.Now().Add(ttl)}
	if err := db.Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ResolveIdentity 把 token 解析为身份。过期的会话行在这里顺手删除，
// 之后同一个 token 永远不再解析。
func ResolveIdentity(db *gorm.DB, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, ErrUnauthenticated
	}
	var s models.Session
	if err := db.Where("token = ?", token).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Identity{}, ErrUnauthenticated
		}
		return models.Identity{}, err
	}
	if time.Now().After(s.ExpiresAt) {
		db.Delete(&models.Session{}, s.ID)
		return models.Identity{}, ErrUnauthenticated
	}
	var user models.User
	if err := db.First(&user, s.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Identity{}, ErrUnauthenticated
		}
		return models.Identity{}, err
	}
	return models.Identity{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// DestroySession 删除会话，token 不存在时同样成功（幂等）。
func DestroySession(db *gorm.DB, token string) error {
	if token == "" {
		return nil
	}
	return db.Where("token = ?", token).Delete(&models.Session{}).Error
}

// CleanupExpiredSessions 删除所有已过期的会话行，返回删除数量。
func CleanupExpiredSessions(db *gorm.DB) (int64, error) {
	res := db.Where("expires_at < ?", time.Now()).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// TokenFromRequest 从 cookie 或 Bearer 头提取会话 token，取不到返回空串。
func TokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
		return cookie
	}
	authz := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	return ""
}

// Middleware 在所有受保护接口之前解析会话身份，后续 handler
// 只接触 Identity，不再接触原始凭证。
func Middleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := ResolveIdentity(db, TokenFromRequest(c))
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth failed"})
			return
		}
		c.Set(identityKey, ident)
		c.Next()
	}
}

// GetIdentity 读取中间件放入上下文的身份，未经过中间件时返回零值。
func GetIdentity(c *gin.Context) models.Identity {
	if v, ok := c.Get(identityKey); ok {
		if ident, ok2 := v.(models.Identity); ok2 {
			return ident
		}
	}
	return models.Identity{}
}
