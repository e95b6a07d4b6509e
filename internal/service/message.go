package service

import (
	"errors"
	"time"

	"github.com/danielsherratt/webchat/internal/channel"
	"github.com/danielsherratt/webchat/internal/metrics"
	"github.com/danielsherratt/webchat/internal/models"

	"gorm.io/gorm"
)

// MessageService 封装消息存储：追加、快照读取与管理操作。
// 每个入口都先经过 channel.Resolve 鉴权，再触碰存储。
type MessageService struct {
	db *gorm.DB
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// MessageDTO 是对外输出的消息数据。
type MessageDTO struct {
	ID        uint      `json:"id"`
	AuthorID  uint      `json:"author_id"`
	Username  string    `json:"username"`
	Channel   string    `json:"channel"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	Timestamp time.Time `json:"timestamp"`
}

func toDTO(m models.Message) MessageDTO {
	return MessageDTO{
		ID:        m.ID,
		AuthorID:  m.AuthorID,
		Username:  m.AuthorUsername,
		Channel:   m.Channel,
		Content:   m.Content,
		Pinned:    m.Pinned,
		Timestamp: m.CreatedAt,
	}
}

// Window 是可选的分页窗口；零值表示完整快照。
type Window struct {
	Limit    int
	BeforeID uint
}

// Append 写入一条消息：服务端分配 id 和时间戳，作者用户名写入时冗余。
// 客户端重试会产生重复消息，这是同步协议接受的行为，不在这里去重。
func (s *MessageService) Append(ident models.Identity, ch channel.Channel, content string) (*MessageDTO, error) {
	if !channel.Resolve(ident, ch).Write {
		return nil, ErrForbidden
	}
	msg := models.Message{
		AuthorID:       ident.UserID,
		AuthorUsername: ident.Username,
		Channel:        ch.Key(),
		Content:        content,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	metrics.MessagesTotal.Inc()
	dto := toDTO(msg)
	return &dto, nil
}

// List 返回频道的当前完整快照，按时间戳升序、同刻按 id 升序。
// 轮询客户端依赖快照完整性：默认不分页，只有显式给出窗口才截断。
func (s *MessageService) List(ident models.Identity, ch channel.Channel, win Window) ([]MessageDTO, error) {
	if !channel.Resolve(ident, ch).Read {
		return nil, ErrForbidden
	}

	q := s.db.Where("channel = ?", ch.Key())
	var msgs []models.Message
	if win.Limit > 0 {
		if win.BeforeID > 0 {
			q = q.Where("id < ?", win.BeforeID)
		}
		if err := q.Order("created_at desc, id desc").Limit(win.Limit).Find(&msgs).Error; err != nil {
			return nil, err
		}
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	} else {
		if err := q.Order("created_at asc, id asc").Find(&msgs).Error; err != nil {
			return nil, err
		}
	}

	metrics.PollsTotal.Inc()
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toDTO(m))
	}
	return out, nil
}

// SetPinned 翻转置顶标记，要求对消息所在频道的管理能力。
// 并发置顶以最后写入为准，不报冲突。
func (s *MessageService) SetPinned(ident models.Identity, id uint, pinned bool) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.First(&msg, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 非管理身份不能据此探测消息是否存在
				if !channel.Resolve(ident, channel.Channel{Kind: channel.Broadcast}).Moderate {
					return ErrForbidden
				}
				return ErrNotFound
			}
			return err
		}
		ch, err := channel.Parse(msg.Channel)
		if err != nil {
			return err
		}
		if !channel.Resolve(ident, ch).Moderate {
			return ErrForbidden
		}
		return tx.Model(&models.Message{}).Where("id = ?", id).Update("pinned", pinned).Error
	})
}

// DeleteOne 删除单条消息。对管理身份幂等：两个管理员并发删除同一条，
// 第二个是 no-op 而不是错误。
func (s *MessageService) DeleteOne(ident models.Identity, id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.First(&msg, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if !channel.Resolve(ident, channel.Channel{Kind: channel.Broadcast}).Moderate {
					return ErrForbidden
				}
				return nil
			}
			return err
		}
		ch, err := channel.Parse(msg.Channel)
		if err != nil {
			return err
		}
		if !channel.Resolve(ident, ch).Moderate {
			return ErrForbidden
		}
		return tx.Delete(&models.Message{}, id).Error
	})
}

// DeleteAll 清空所有频道的全部消息，只有管理员可用，不可逆。
func (s *MessageService) DeleteAll(ident models.Identity) error {
	if !channel.Resolve(ident, channel.Channel{Kind: channel.Broadcast}).Moderate {
		return ErrForbidden
	}
	return s.db.Exec("DELETE FROM messages").Error
}
