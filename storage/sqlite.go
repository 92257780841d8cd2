package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	storageStructs "github.com/cxykevin/mizar0/storage/structs"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore sqlite 存储后端
type SQLiteStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewSQLite 初始化 sqlite 后端
// 打开连接时清理过期会话（TTL按 LastActive 计）；凭证记录不过期
func NewSQLite(dataPath string, dbFile string, ttlDays int32) (*SQLiteStore, error) {
	if dataPath == "" {
		dataPath = ".mizar0"
		if v := os.Getenv("MIZAR0_DEBUG_PROJECTPATH"); v != "" {
			dataPath = v
		}
	}
	if dbFile == "" {
		dbFile = "db.sqlite"
		if v := os.Getenv("MIZAR0_DEBUG_SQLITEFILE"); v != "" {
			dbFile = v
		}
	}

	dbPath := dbFile
	// 支持内存数据库
	if dbFile != ":memory:" {
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			logger.Error("failed to create project data dir %s: %v", dataPath, err)
			return nil, fmt.Errorf("failed to create project data dir %s: %w", dataPath, err)
		}
		dbPath = filepath.Join(dataPath, dbFile)
	}
	logger.Info("storage init in %s", dbPath)

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: NewGormLogger()})
	if err != nil {
		logger.Error("failed to open db %s: %v", dbPath, err)
		return nil, fmt.Errorf("failed to open db %s: %w", dbPath, err)
	}

	if err := db.AutoMigrate(storageStructs.Tables...); err != nil {
		return nil, fmt.Errorf("failed to automigrate: %w", err)
	}

	store := &SQLiteStore{db: db, ttl: time.Duration(ttlDays) * 24 * time.Hour}
	store.sweepExpired()
	return store, nil
}

// sweepExpired 清理超过TTL的会话
func (s *SQLiteStore) sweepExpired() {
	if s.ttl <= 0 {
		return
	}
	deadline := time.Now().Add(-s.ttl).Unix()
	tx := s.db.Where("last_active < ?", deadline).Delete(&storageStructs.Conversations{})
	if tx.Error != nil {
		logger.Warn("ttl sweep failed: %v", tx.Error)
		return
	}
	if tx.RowsAffected > 0 {
		logger.Info("ttl sweep removed %d conversations", tx.RowsAffected)
	}
}

// GetConversation 读取会话
func (s *SQLiteStore) GetConversation(id string) (*storageStructs.Conversations, error) {
	var conv storageStructs.Conversations
	err := s.db.Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// SetConversation 写入会话
func (s *SQLiteStore) SetConversation(conv *storageStructs.Conversations) error {
	return s.db.Save(conv).Error
}

// GetCredential 读取凭证
func (s *SQLiteStore) GetCredential(key string) (*storageStructs.Credentials, error) {
	var cred storageStructs.Credentials
	err := s.db.Where("key = ?", key).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// SetCredential 写入凭证
func (s *SQLiteStore) SetCredential(cred *storageStructs.Credentials) error {
	return s.db.Save(cred).Error
}

// ListCredentials 列出全部凭证
func (s *SQLiteStore) ListCredentials() ([]storageStructs.Credentials, error) {
	var creds []storageStructs.Credentials
	if err := s.db.Order("key").Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}
