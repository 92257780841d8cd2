package structs

import "encoding/gob"

// MessagesRole 消息类型
type MessagesRole uint8

// 消息类型
const (
	MessagesRoleUser MessagesRole = iota
	MessagesRoleAssistant
)

// PartType 内容分片类型
type PartType uint8

// 内容分片类型
const (
	PartTypeText PartType = iota
	PartTypeImage
	PartTypeFile
)

// ContentPart 多模态内容分片
// 数组内顺序即插入顺序，会原样重放给远端
type ContentPart struct {
	Type     PartType
	Text     string
	URL      string
	FileName string
}

// Usage 令牌使用统计
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Message 单条消息
type Message struct {
	ID      string // UUID
	Type    MessagesRole
	Content string
	Parts   []ContentPart // 非空时为多模态消息
	Time    int64
	Usage   *Usage
}

// MessageList 消息列表
type MessageList []Message

// 使用gob注册消息列表
func init() {
	gob.Register(MessageList{})
}

// Conversations 会话记录
type Conversations struct {
	ID         string      `gorm:"primaryKey"`
	UserName   string
	Messages   MessageList `gorm:"type:bytes;serializer:gob"`
	LastActive int64       `gorm:"index"`
}
