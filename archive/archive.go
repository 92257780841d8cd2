// Package archive 会话消息归档
//
// 每个会话一个JSONL文件，每行一个批次 {"messages":[{role,content},...]}。
// 文件最后一行始终是当前可追加的开放批次，之前的批次不可变。
// 归档写失败只记日志不上抛，活跃会话状态不受影响。
package archive

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cxykevin/mizar0/log"
	storageStructs "github.com/cxykevin/mizar0/storage/structs"
)

var logger *log.LogsObj

func init() {
	logger = log.New("archive")
}

// Entry 归档条目
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Batch 归档批次，对应一次重置之间的会话历史
type Batch struct {
	Messages []Entry `json:"messages"`
}

// Store 归档存储
type Store struct {
	dir string
}

// NewStore 创建归档存储
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(convID string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(convID))+".jsonl")
}

// roleTag 消息角色标签
func roleTag(role storageStructs.MessagesRole) string {
	if role == storageStructs.MessagesRoleAssistant {
		return "assistant"
	}
	return "user"
}

// renderContent 归档用纯文本渲染
func renderContent(msg *storageStructs.Message) string {
	if len(msg.Parts) == 0 {
		return msg.Content
	}
	var sb strings.Builder
	for _, part := range msg.Parts {
		switch part.Type {
		case storageStructs.PartTypeText:
			sb.WriteString(part.Text)
		case storageStructs.PartTypeImage:
			sb.WriteString("[image] " + part.URL)
		case storageStructs.PartTypeFile:
			sb.WriteString("[file] " + part.FileName)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// load 读取全部批次，保证至少有一个开放批次
func (s *Store) load(convID string) []Batch {
	batches := []Batch{}
	file, err := os.Open(s.path(convID))
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var batch Batch
			if err := json.Unmarshal([]byte(line), &batch); err != nil {
				logger.Warn("skip malformed archive line for %s: %v", convID, err)
				continue
			}
			batches = append(batches, batch)
		}
	}
	if len(batches) == 0 {
		batches = append(batches, Batch{Messages: []Entry{}})
	}
	return batches
}

// save 重写归档文件（批次数量通常很小）
func (s *Store) save(convID string, batches []Batch) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	var sb strings.Builder
	for _, batch := range batches {
		data, err := json.Marshal(batch)
		if err != nil {
			return err
		}
		sb.Write(data)
		sb.WriteString("\n")
	}
	return os.WriteFile(s.path(convID), []byte(sb.String()), 0644)
}

// setInstruction 指令写入开放批次首条system条目（替换而非重复）
func setInstruction(batch *Batch, instruction string) {
	if instruction == "" {
		return
	}
	entry := Entry{Role: "system", Content: instruction}
	if len(batch.Messages) > 0 && batch.Messages[0].Role == "system" {
		batch.Messages[0] = entry
		return
	}
	batch.Messages = append([]Entry{entry}, batch.Messages...)
}

// EvictOldest 从会话中摘除最旧的一条消息并追加到开放批次
// 会话内存状态的修改总是发生；归档落盘失败只记日志
func (s *Store) EvictOldest(conv *storageStructs.Conversations, instruction string) {
	if len(conv.Messages) == 0 {
		return
	}
	oldest := conv.Messages[0]
	conv.Messages = conv.Messages[1:]

	batches := s.load(conv.ID)
	open := &batches[len(batches)-1]
	setInstruction(open, instruction)
	open.Messages = append(open.Messages, Entry{
		Role:    roleTag(oldest.Type),
		Content: renderContent(&oldest),
	})
	if err := s.save(conv.ID, batches); err != nil {
		logger.Error("archive evict write failed for %s: %v", conv.ID, err)
	}
}

// WrapAll 会话重置时归档全部现有消息并封闭批次
// 封闭后追加一个新的空开放批次作为文件尾行
func (s *Store) WrapAll(conv *storageStructs.Conversations, instruction string) {
	batches := s.load(conv.ID)
	open := &batches[len(batches)-1]
	setInstruction(open, instruction)
	for i := range conv.Messages {
		open.Messages = append(open.Messages, Entry{
			Role:    roleTag(conv.Messages[i].Type),
			Content: renderContent(&conv.Messages[i]),
		})
	}
	batches = append(batches, Batch{Messages: []Entry{}})
	if err := s.save(conv.ID, batches); err != nil {
		logger.Error("archive wrap write failed for %s: %v", conv.ID, err)
	}
}

// Load 读取会话的全部归档批次（只读）
func (s *Store) Load(convID string) []Batch {
	return s.load(convID)
}
