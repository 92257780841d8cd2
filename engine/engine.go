// Package engine 会话上下文构建与弹性补全执行
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cxykevin/mizar0/archive"
	"github.com/cxykevin/mizar0/config/structs"
	"github.com/cxykevin/mizar0/credential"
	"github.com/cxykevin/mizar0/log"
	"github.com/cxykevin/mizar0/moderation"
	"github.com/cxykevin/mizar0/prompts"
	"github.com/cxykevin/mizar0/provider/request"
	"github.com/cxykevin/mizar0/storage"
	storageStructs "github.com/cxykevin/mizar0/storage/structs"
	"github.com/cxykevin/mizar0/tokenizer"
)

var logger *log.LogsObj

func init() {
	logger = log.New("engine")
}

// ErrExhausted 重试耗尽，包装最后一次错误
var ErrExhausted = errors.New("retries exhausted")

// ProviderError 上游返回的确定性错误（不重试）
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (HTTP %d): %s", e.StatusCode, e.Message)
}

const (
	maxRetries         = 5
	imageFetchRetries  = 5
	imageFetchDelay    = 500 * time.Millisecond
	rejectionCharDelay = 30 * time.Millisecond
)

// StreamCallback 流式增量回调，nil 表示调用方不关心增量
type StreamCallback func(delta string)

// AskOptions 单次请求参数
type AskOptions struct {
	UserName     string
	GroupName    string // 以roleplay开头（不区分大小写）走角色扮演模板，非空走群聊模板
	Persona      string
	Parts        []storageStructs.ContentPart // 多模态分片，追加到本次用户消息
	UseAlternate bool                         // 走备用池与备用端点
}

// Engine 补全引擎
type Engine struct {
	cfg       structs.EngineConfig
	store     storage.Store
	pool      *credential.Pool
	archive   *archive.Store
	client    *http.Client
	counter   tokenizer.Counter
	moderator moderation.Moderator
	sleep     func(time.Duration)
}

// Option 引擎构造选项
type Option func(*Engine)

// WithCounter 注入token计数器
func WithCounter(counter tokenizer.Counter) Option {
	return func(e *Engine) { e.counter = counter }
}

// WithModerator 注入审核器
func WithModerator(moderator moderation.Moderator) Option {
	return func(e *Engine) { e.moderator = moderator }
}

// WithHTTPClient 注入HTTP客户端
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) { e.client = client }
}

// WithSleep 注入延时函数（测试用）
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// New 创建引擎
func New(cfg structs.EngineConfig, store storage.Store, pool *credential.Pool, arch *archive.Store, opts ...Option) (*Engine, error) {
	engine := &Engine{
		cfg:     cfg,
		store:   store,
		pool:    pool,
		archive: arch,
		counter: tokenizer.Estimate,
		sleep:   time.Sleep,
	}
	if len(cfg.FilterRules) > 0 {
		filter, err := moderation.NewRuleFilter(cfg.FilterRules)
		if err != nil {
			return nil, err
		}
		engine.moderator = filter
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.client == nil {
		client, err := request.NewClient(cfg.ProxyURL)
		if err != nil {
			return nil, err
		}
		engine.client = client
	}
	return engine, nil
}

// loadConversation 读取会话，不存在时按首次引用创建
func (e *Engine) loadConversation(convID string, userName string) (*storageStructs.Conversations, error) {
	conv, err := e.store.GetConversation(convID)
	if errors.Is(err, storage.ErrNotFound) {
		return &storageStructs.Conversations{ID: convID, UserName: userName}, nil
	}
	if err != nil {
		return nil, err
	}
	if userName != "" {
		conv.UserName = userName
	}
	return conv, nil
}

// Ask 发起一次补全
// 审核命中时返回固定拒绝文案（通过回调逐字符模拟流式），不访问远端。
// 成功时助手消息连同用量写入会话并持久化。
func (e *Engine) Ask(ctx context.Context, convID string, prompt string, opts AskOptions, callback StreamCallback) (string, error) {
	if e.cfg.EnableModeration && e.moderator != nil {
		flagged, err := e.moderator.Check(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("moderation failed: %w", err)
		}
		if flagged {
			logger.Warn("prompt flagged, rejecting conversation %s", convID)
			for _, r := range prompts.Rejection {
				if callback != nil {
					callback(string(r))
				}
				e.sleep(rejectionCharDelay)
			}
			return prompts.Rejection, nil
		}
	}

	conv, err := e.loadConversation(convID, opts.UserName)
	if err != nil {
		return "", err
	}

	rendered, err := e.buildContext(ctx, conv, prompt, opts)
	if err != nil {
		return "", err
	}

	text, usage, err := e.complete(ctx, rendered, opts, callback)
	if err != nil {
		return "", err
	}

	now := time.Now()
	conv.Messages = append(conv.Messages, storageStructs.Message{
		ID:      newMessageID(),
		Type:    storageStructs.MessagesRoleAssistant,
		Content: text,
		Time:    now.Unix(),
		Usage:   usage,
	})
	conv.LastActive = now.Unix()
	if err := e.store.SetConversation(conv); err != nil {
		return "", fmt.Errorf("failed to persist conversation: %w", err)
	}
	return text, nil
}

// Reset 重置会话：全部消息封批归档后清空
func (e *Engine) Reset(convID string) error {
	conv, err := e.store.GetConversation(convID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	e.archive.WrapAll(conv, "")
	conv.Messages = nil
	conv.LastActive = time.Now().Unix()
	return e.store.SetConversation(conv)
}

// DeleteLast 删除最新的n条消息（不归档）
func (e *Engine) DeleteLast(convID string, n int) error {
	if n <= 0 {
		return nil
	}
	conv, err := e.store.GetConversation(convID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if n >= len(conv.Messages) {
		conv.Messages = nil
	} else {
		conv.Messages = conv.Messages[:len(conv.Messages)-n]
	}
	conv.LastActive = time.Now().Unix()
	return e.store.SetConversation(conv)
}
