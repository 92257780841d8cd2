// Package storage 会话与凭证持久化
package storage

import (
	"errors"
	"fmt"

	"github.com/cxykevin/mizar0/config/structs"
	"github.com/cxykevin/mizar0/log"
	storageStructs "github.com/cxykevin/mizar0/storage/structs"
)

var logger *log.LogsObj

func init() {
	logger = log.New("storage")
}

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Store 存储协作方契约
// 两种后端（sqlite / 平面文件）在构造时二选一，所有操作行为一致
type Store interface {
	GetConversation(id string) (*storageStructs.Conversations, error)
	SetConversation(conv *storageStructs.Conversations) error
	GetCredential(key string) (*storageStructs.Credentials, error)
	SetCredential(cred *storageStructs.Credentials) error
	ListCredentials() ([]storageStructs.Credentials, error)
}

// New 按配置构造存储后端
func New(cfg structs.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite", "":
		return NewSQLite(cfg.DataPath, cfg.DBFile, cfg.TTLDays)
	case "file":
		return NewFileStore(cfg.DataPath, cfg.TTLDays)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
