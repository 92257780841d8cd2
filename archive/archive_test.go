package archive

import (
	"path/filepath"
	"testing"

	storageStructs "github.com/cxykevin/mizar0/storage/structs"
)

func makeConv(n int) *storageStructs.Conversations {
	conv := &storageStructs.Conversations{ID: "conv-1"}
	for i := 0; i < n; i++ {
		role := storageStructs.MessagesRoleUser
		if i%2 == 1 {
			role = storageStructs.MessagesRoleAssistant
		}
		conv.Messages = append(conv.Messages, storageStructs.Message{
			ID:      string(rune('a' + i)),
			Type:    role,
			Content: "msg-" + string(rune('0'+i)),
		})
	}
	return conv
}

func TestEvictOrder(t *testing.T) {
	store := NewStore(t.TempDir())
	conv := makeConv(3)

	store.EvictOldest(conv, "")
	store.EvictOldest(conv, "")

	if len(conv.Messages) != 1 {
		t.Fatalf("conversation should have 1 message left, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Content != "msg-2" {
		t.Errorf("remaining message should be the newest, got %s", conv.Messages[0].Content)
	}

	batches := store.Load("conv-1")
	if len(batches) != 1 {
		t.Fatalf("expected 1 open batch, got %d", len(batches))
	}
	open := batches[0]
	if len(open.Messages) != 2 {
		t.Fatalf("open batch should hold 2 entries, got %d", len(open.Messages))
	}
	// 最早被驱逐的消息排在最前
	if open.Messages[0].Content != "msg-0" || open.Messages[1].Content != "msg-1" {
		t.Errorf("eviction order mismatch: %+v", open.Messages)
	}
	if open.Messages[0].Role != "user" || open.Messages[1].Role != "assistant" {
		t.Errorf("role tags mismatch: %+v", open.Messages)
	}
}

func TestEvictInstructionReplaced(t *testing.T) {
	store := NewStore(t.TempDir())
	conv := makeConv(3)

	store.EvictOldest(conv, "instruction v1")
	store.EvictOldest(conv, "instruction v2")

	open := store.Load("conv-1")[0]
	if open.Messages[0].Role != "system" {
		t.Fatalf("first entry should be system, got %s", open.Messages[0].Role)
	}
	if open.Messages[0].Content != "instruction v2" {
		t.Errorf("system entry should be replaced, got %s", open.Messages[0].Content)
	}
	// system条目不应重复
	count := 0
	for _, e := range open.Messages {
		if e.Role == "system" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly 1 system entry, got %d", count)
	}
}

func TestWrapAllCloses(t *testing.T) {
	store := NewStore(t.TempDir())
	conv := makeConv(2)
	store.EvictOldest(conv, "")

	store.WrapAll(conv, "sys")

	batches := store.Load("conv-1")
	if len(batches) != 2 {
		t.Fatalf("expected closed batch + new open batch, got %d", len(batches))
	}
	closed := batches[0]
	// 封闭批次应包含先前驱逐的消息与重置时的存量消息，原始顺序
	var contents []string
	for _, e := range closed.Messages {
		if e.Role != "system" {
			contents = append(contents, e.Content)
		}
	}
	if len(contents) != 2 || contents[0] != "msg-0" || contents[1] != "msg-1" {
		t.Errorf("closed batch content mismatch: %v", contents)
	}
	if len(batches[1].Messages) != 0 {
		t.Errorf("new open batch should be empty, got %+v", batches[1].Messages)
	}
}

func TestEvictEmptyConversation(t *testing.T) {
	store := NewStore(t.TempDir())
	conv := &storageStructs.Conversations{ID: "empty"}
	store.EvictOldest(conv, "sys")
	if len(conv.Messages) != 0 {
		t.Error("empty conversation should stay empty")
	}
}

func TestArchiveFailureKeepsConversation(t *testing.T) {
	// 指向不可写目录（把文件当目录用）
	dir := t.TempDir()
	bad := filepath.Join(dir, "blocked")
	writeFile(t, bad)
	store := NewStore(filepath.Join(bad, "sub"))

	conv := makeConv(3)
	store.EvictOldest(conv, "")

	// 归档写失败，但活跃会话仍被正确修剪
	if len(conv.Messages) != 2 {
		t.Errorf("conversation should be trimmed despite archive failure, got %d messages", len(conv.Messages))
	}
}

func TestMultipartRender(t *testing.T) {
	store := NewStore(t.TempDir())
	conv := &storageStructs.Conversations{ID: "mp"}
	conv.Messages = append(conv.Messages, storageStructs.Message{
		ID:   "m1",
		Type: storageStructs.MessagesRoleUser,
		Parts: []storageStructs.ContentPart{
			{Type: storageStructs.PartTypeText, Text: "look at this"},
			{Type: storageStructs.PartTypeImage, URL: "http://img.example/x.png"},
		},
	})
	store.EvictOldest(conv, "")

	open := store.Load("mp")[0]
	if len(open.Messages) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(open.Messages))
	}
	got := open.Messages[0].Content
	if got == "" || got == "look at this" {
		// 图片引用也应出现在归档文本里
		t.Errorf("multipart render should include image reference, got %q", got)
	}
}
