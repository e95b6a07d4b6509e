package service

import (
	"errors"
	"time"

	"github.com/danielsherratt/webchat/internal/auth"
	"github.com/danielsherratt/webchat/internal/channel"
	"github.com/danielsherratt/webchat/internal/config"
	"github.com/danielsherratt/webchat/internal/models"

	"gorm.io/gorm"
)

// UserService 封装账号与会话相关的业务逻辑。
type UserService struct {
	db  *gorm.DB
	cfg config.Config
}

func NewUserService(db *gorm.DB, cfg config.Config) *UserService {
	return &UserService{db: db, cfg: cfg}
}

// 账号管理是管理员专属操作；统一走能力解析器判定，
// 广播频道的管理能力等价于管理员角色。
func canManageUsers(ident models.Identity) bool {
	return channel.Resolve(ident, channel.Channel{Kind: channel.Broadcast}).Moderate
}

// UserDTO 是对外输出的用户数据，不含凭证散列。
type UserDTO struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Register 注册普通成员账号。
func (s *UserService) Register(username, password string) (*UserDTO, error) {
	return s.createUser(username, password, models.RoleMember)
}

func (s *UserService) createUser(username, password, role string) (*UserDTO, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Username: username, PasswordHash: hash, Role: role}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &UserDTO{ID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	Token string
	User  UserDTO
}

// Login 校验用户名密码并签发新会话。未知用户和密码错误返回同一个
// 错误，避免用户名枚举。
func (s *UserService) Login(username, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	ttl := time.Duration(s.cfg.SessionTTLHours) * time.Hour
	session, err := auth.CreateSession(s.db, user.ID, ttl)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token: session.Token,
		User:  UserDTO{ID: user.ID, Username: user.Username, Role: user.Role},
	}, nil
}

// Logout 销毁会话，幂等。
func (s *UserService) Logout(token string) error {
	return auth.DestroySession(s.db, token)
}

// List 返回全部用户，管理员专属。
func (s *UserService) List(ident models.Identity) ([]UserDTO, error) {
	if !canManageUsers(ident) {
		return nil, ErrForbidden
	}
	var users []models.User
	if err := s.db.Order("id asc").Find(&users).Error; err != nil {
		return nil, err
	}
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, UserDTO{ID: u.ID, Username: u.Username, Role: u.Role})
	}
	return out, nil
}

// Create 由管理员创建任意角色的账号。
func (s *UserService) Create(ident models.Identity, username, password, role string) (*UserDTO, error) {
	if !canManageUsers(ident) {
		return nil, ErrForbidden
	}
	if role != models.RoleMember && role != models.RoleAdmin {
		return nil, errors.New("invalid role")
	}
	return s.createUser(username, password, role)
}

// UserUpdate 描述一次账号修改；空字段表示不变。
type UserUpdate struct {
	Username string
	Password string
	Role     string
}

// Update 由管理员修改账号的用户名、密码或角色。
// 历史消息里冗余的作者用户名不回写。
func (s *UserService) Update(ident models.Identity, id uint, upd UserUpdate) error {
	if !canManageUsers(ident) {
		return ErrForbidden
	}
	if upd.Role != "" && upd.Role != models.RoleMember && upd.Role != models.RoleAdmin {
		return errors.New("invalid role")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if upd.Username != "" && upd.Username != user.Username {
			var count int64
			if err := tx.Model(&models.User{}).Where("username = ?", upd.Username).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrUsernameTaken
			}
			user.Username = upd.Username
		}
		if upd.Password != "" {
			hash, err := auth.HashPassword(upd.Password)
			if err != nil {
				return err
			}
			user.PasswordHash = hash
		}
		if upd.Role != "" {
			user.Role = upd.Role
		}
		return tx.Save(&user).Error
	})
}

// Delete 由管理员删除账号，并连带销毁其全部会话。
func (s *UserService) Delete(ident models.Identity, id uint) error {
	if !canManageUsers(ident) {
		return ErrForbidden
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Session{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, id).Error
	})
}

// ChangePassword 用户修改自己的密码。
func (s *UserService) ChangePassword(ident models.Identity, newPassword string) error {
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.db.Model(&models.User{}).Where("id = ?", ident.UserID).Update("password_hash", hash).Error
}

// SeedAdmin 在没有任何管理员时创建初始管理员账号，幂等。
func (s *UserService) SeedAdmin(username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err := s.createUser(username, password, models.RoleAdmin)
	if errors.Is(err, ErrUsernameTaken) {
		return nil
	}
	return err
}
