package credential

import (
	"encoding/json"
	"os"
	"sync"
)

// Registry 凭证黑名单
// 进程内集合 + 侧文件持久化；只增不减，清理走带外操作
type Registry struct {
	path string
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewRegistry 创建黑名单，path为空则不落盘
func NewRegistry(path string) *Registry {
	r := &Registry{path: path, keys: make(map[string]struct{})}
	r.load()
	return r
}

func (r *Registry) load() {
	if r.path == "" {
		return
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		logger.Warn("blacklist file malformed, starting empty: %v", err)
		return
	}
	for _, key := range keys {
		r.keys[key] = struct{}{}
	}
}

func (r *Registry) persist() {
	if r.path == "" {
		return
	}
	keys := make([]string, 0, len(r.keys))
	for key := range r.keys {
		keys = append(keys, key)
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		logger.Warn("blacklist persist failed: %v", err)
	}
}

// Blacklist 拉黑凭证（幂等）
func (r *Registry) Blacklist(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[key]; ok {
		return
	}
	logger.Info("blacklist credential %s", key)
	r.keys[key] = struct{}{}
	r.persist()
}

// Has 是否已拉黑
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.keys[key]
	return ok
}
