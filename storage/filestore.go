package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	storageStructs "github.com/cxykevin/mizar0/storage/structs"
)

// FileStore 平面文件存储后端
// 每条记录一个JSON文件；与sqlite后端共用同一契约，不做静默降级
type FileStore struct {
	convDir string
	credDir string
	ttl     time.Duration
}

// NewFileStore 初始化平面文件后端
func NewFileStore(dataPath string, ttlDays int32) (*FileStore, error) {
	if dataPath == "" {
		dataPath = ".mizar0"
	}
	store := &FileStore{
		convDir: filepath.Join(dataPath, "conversations"),
		credDir: filepath.Join(dataPath, "credentials"),
		ttl:     time.Duration(ttlDays) * 24 * time.Hour,
	}
	for _, dir := range []string{store.convDir, store.credDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
		}
	}
	store.sweepExpired()
	return store, nil
}

// encodeName 文件名编码（id/key 可能包含路径字符）
func encodeName(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id)) + ".json"
}

func readRecord(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, out)
}

func writeRecord(path string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	// 先写临时文件再改名，保证单条记录原子可见
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// sweepExpired 清理超过TTL的会话文件
func (s *FileStore) sweepExpired() {
	if s.ttl <= 0 {
		return
	}
	deadline := time.Now().Add(-s.ttl).Unix()
	entries, err := os.ReadDir(s.convDir)
	if err != nil {
		logger.Warn("ttl sweep failed: %v", err)
		return
	}
	removed := 0
	for _, entry := range entries {
		path := filepath.Join(s.convDir, entry.Name())
		var conv storageStructs.Conversations
		if err := readRecord(path, &conv); err != nil {
			continue
		}
		if conv.LastActive < deadline {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		logger.Info("ttl sweep removed %d conversations", removed)
	}
}

// GetConversation 读取会话
func (s *FileStore) GetConversation(id string) (*storageStructs.Conversations, error) {
	var conv storageStructs.Conversations
	if err := readRecord(filepath.Join(s.convDir, encodeName(id)), &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// SetConversation 写入会话
func (s *FileStore) SetConversation(conv *storageStructs.Conversations) error {
	return writeRecord(filepath.Join(s.convDir, encodeName(conv.ID)), conv)
}

// GetCredential 读取凭证
func (s *FileStore) GetCredential(key string) (*storageStructs.Credentials, error) {
	var cred storageStructs.Credentials
	if err := readRecord(filepath.Join(s.credDir, encodeName(key)), &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// SetCredential 写入凭证
func (s *FileStore) SetCredential(cred *storageStructs.Credentials) error {
	return writeRecord(filepath.Join(s.credDir, encodeName(cred.Key)), cred)
}

// ListCredentials 列出全部凭证
func (s *FileStore) ListCredentials() ([]storageStructs.Credentials, error) {
	entries, err := os.ReadDir(s.credDir)
	if err != nil {
		return nil, err
	}
	creds := make([]storageStructs.Credentials, 0, len(entries))
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var cred storageStructs.Credentials
		if err := readRecord(filepath.Join(s.credDir, entry.Name()), &cred); err != nil {
			continue
		}
		creds = append(creds, cred)
	}
	return creds, nil
}
