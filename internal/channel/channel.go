package channel

import (
	"errors"
	"strconv"
	"strings"

	"github.com/danielsherratt/webchat/internal/models"
)

// 频道不是存储实体，只是派生地址：广播频道 "everyone"，
// 或成员与管理员之间的私聊频道 "private-{memberId}"，其余一律拒绝。

const (
	BroadcastKey  = "everyone"
	privatePrefix = "private-"
)

var ErrInvalidKey = errors.New("invalid channel key")

type Kind int

const (
	Broadcast Kind = iota
	Private
)

type Channel struct {
	Kind     Kind
	MemberID uint
}

// Parse 在边界处把频道键解析为带标签的值，业务代码不再二次拆字符串。
func Parse(key string) (Channel, error) {
	if key == BroadcastKey {
		return Channel{Kind: Broadcast}, nil
	}
	rest, ok := strings.CutPrefix(key, privatePrefix)
	if !ok || rest == "" {
		return Channel{}, ErrInvalidKey
	}
	id, err := strconv.ParseUint(rest, 10, 32)
	if err != nil || id == 0 {
		return Channel{}, ErrInvalidKey
	}
	return Channel{Kind: Private, MemberID: uint(id)}, nil
}

func (c Channel) Key() string {
	if c.Kind == Broadcast {
		return BroadcastKey
	}
	return privatePrefix + strconv.FormatUint(uint64(c.MemberID), 10)
}

// Capabilities 是某个身份在某个频道上被授予的能力集合。
type Capabilities struct {
	Read     bool
	Write    bool
	Moderate bool
}

// Resolve 是唯一的鉴权入口：所有读写和管理操作都必须先经过它。
// 规则：广播频道对所有登录身份可读写，管理员可管理；私聊频道只有
// 对应成员和管理员可读写，且只有管理员可管理。
func Resolve(ident models.Identity, ch Channel) Capabilities {
	switch ch.Kind {
	case Broadcast:
		if ident.Role != models.RoleMember && ident.Role != models.RoleAdmin {
			return Capabilities{}
		}
		return Capabilities{Read: true, Write: true, Moderate: ident.IsAdmin()}
	case Private:
		if ident.IsAdmin() {
			return Capabilities{Read: true, Write: true, Moderate: true}
		}
		if ident.Role == models.RoleMember && ident.UserID == ch.MemberID {
			return Capabilities{Read: true, Write: true}
		}
	}
	return Capabilities{}
}
