package models

import "time"

// 用户角色只有两种：普通成员和管理员。
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"size:16;not null;default:member"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session 是服务端持有的不透明会话：token 行被删除或过期后永远不再解析。
type Session struct {
	ID        uint   `gorm:"primaryKey"`
	Token     string `gorm:"uniqueIndex;size:128;not null"`
	UserID    uint   `gorm:"index;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index;not null"`
}

// Message 的 channel 在创建后不可变；作者用户名在写入时冗余保存，
// 之后改名不回写历史。
type Message struct {
	ID             uint   `gorm:"primaryKey"`
	AuthorID       uint   `gorm:"index;not null"`
	AuthorUsername string `gorm:"size:64;not null"`
	Channel        string `gorm:"index:idx_msg_channel;size:96;not null"`
	Content        string `gorm:"type:text;not null"`
	Pinned         bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

// Identity 是从有效会话解析出的身份，所有鉴权都以它为输入。
type Identity struct {
	UserID   uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }
