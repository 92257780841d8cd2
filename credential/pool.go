// Package credential 凭证选择与用量记账
package credential

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/cxykevin/mizar0/log"
	"github.com/cxykevin/mizar0/storage"
	storageStructs "github.com/cxykevin/mizar0/storage/structs"
)

var logger *log.LogsObj

func init() {
	logger = log.New("credential")
}

// ErrNoCredentials 主池为空
var ErrNoCredentials = errors.New("no credentials available")

// ErrAllBlacklisted 备用池全部被拉黑
var ErrAllBlacklisted = errors.New("all credentials blacklisted")

// 备用池选择模式
const (
	ModeSequential = "sequential"
	ModeRandom     = "random"
)

// Pool 凭证池
type Pool struct {
	store     storage.Store
	registry  *Registry
	unitPrice float64

	mu     sync.Mutex
	cursor int // 轮询游标，跨调用保持
}

// NewPool 创建凭证池
func NewPool(store storage.Store, registry *Registry, unitPrice float64) *Pool {
	return &Pool{store: store, registry: registry, unitPrice: unitPrice}
}

// Seed 初始Key入库（仅创建不存在的记录）
func (p *Pool) Seed(keys []string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, err := p.store.GetCredential(key); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := p.store.SetCredential(&storageStructs.Credentials{Key: key}); err != nil {
			return fmt.Errorf("failed to seed credential: %w", err)
		}
	}
	return nil
}

// Select 主池成本均衡选择：返回Balance最低的凭证
func (p *Pool) Select() (*storageStructs.Credentials, error) {
	creds, err := p.store.ListCredentials()
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}
	best := 0
	for i := 1; i < len(creds); i++ {
		if creds[i].Balance < creds[best].Balance {
			best = i
		}
	}
	selected := creds[best]
	logger.Debug("select credential %s (balance %.6f)", selected.Key, selected.Balance)
	return &selected, nil
}

// SelectAlternate 备用池选择
// 先过滤黑名单，再按 sequential（轮询，游标跨调用保持）或 random 取Key
func (p *Pool) SelectAlternate(keys []string, mode string) (string, error) {
	filtered := make([]string, 0, len(keys))
	for _, key := range keys {
		if p.registry != nil && p.registry.Has(key) {
			continue
		}
		filtered = append(filtered, key)
	}
	if len(filtered) == 0 {
		return "", ErrAllBlacklisted
	}

	switch mode {
	case ModeRandom:
		return filtered[rand.Intn(len(filtered))], nil
	default:
		p.mu.Lock()
		key := filtered[p.cursor%len(filtered)]
		p.cursor++
		p.mu.Unlock()
		return key, nil
	}
}

// Blacklist 拉黑备用池Key（幂等，只影响后续 SelectAlternate）
func (p *Pool) Blacklist(key string) {
	if p.registry != nil {
		p.registry.Blacklist(key)
	}
}

// RecordUsage 成功补全后记账：查询数+1、累加token、重算余额并写回存储
func (p *Pool) RecordUsage(cred *storageStructs.Credentials, tokens int) error {
	if tokens < 0 {
		tokens = 0
	}
	cred.Queries++
	cred.Tokens += uint64(tokens)
	cred.Balance = float64(cred.Tokens) / 1000 * p.unitPrice
	return p.store.SetCredential(cred)
}
