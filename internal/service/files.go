package service

import (
	"fmt"
	"regexp"

	"github.com/danielsherratt/webchat/internal/channel"
	"github.com/danielsherratt/webchat/internal/models"
)

// 消息正文里内嵌的文件链接片段。消息表从不保存文件字节，
// 只保存这个片段；客户端据此渲染链接。
var fragmentRe = regexp.MustCompile(`<a href="([^"]+)" target="_blank">([^<]+)</a>`)

// Fragment 把外部存储的文件引用变成可嵌入消息正文的链接片段。
func Fragment(url, filename string) string {
	return fmt.Sprintf(`<a href="%s" target="_blank">%s</a>`, url, filename)
}

// SharedFile 是共享文件视图的一项。
type SharedFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// SharedFiles 扫描频道消息中的链接片段并投影为文件列表。
// 这是派生视图而不是独立存储：每次重新计算，删除消息后立即消失。
func (s *MessageService) SharedFiles(ident models.Identity, ch channel.Channel) ([]SharedFile, error) {
	msgs, err := s.List(ident, ch, Window{})
	if err != nil {
		return nil, err
	}
	out := make([]SharedFile, 0)
	for _, m := range msgs {
		match := fragmentRe.FindStringSubmatch(m.Content)
		if match == nil {
			continue
		}
		out = append(out, SharedFile{URL: match[1], Filename: match[2]})
	}
	return out, nil
}
