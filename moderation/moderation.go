// Package moderation 内容审核协作方
package moderation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cxykevin/mizar0/log"
	"github.com/cxykevin/mizar0/provider/request"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var logger *log.LogsObj

func init() {
	logger = log.New("moderation")
}

// Moderator 审核器，flagged=true 表示内容被拦截
type Moderator interface {
	Check(ctx context.Context, text string) (bool, error)
}

// FilterEnv 本地规则求值环境
type FilterEnv struct {
	Prompt string `expr:"Prompt"`
	Length int    `expr:"Length"`
}

// RuleFilter 本地过滤规则
// 规则来自配置，逐条编译为布尔表达式，任一命中即拦截
type RuleFilter struct {
	programs []*vm.Program
	sources  []string
}

// NewRuleFilter 编译过滤规则
func NewRuleFilter(rules []string) (*RuleFilter, error) {
	filter := &RuleFilter{}
	for _, rule := range rules {
		if rule == "" {
			continue
		}
		program, err := expr.Compile(rule, expr.Env(FilterEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("failed to compile filter rule %q: %w", rule, err)
		}
		filter.programs = append(filter.programs, program)
		filter.sources = append(filter.sources, rule)
	}
	return filter, nil
}

// Check 逐条求值
func (f *RuleFilter) Check(ctx context.Context, text string) (bool, error) {
	env := FilterEnv{Prompt: text, Length: len(text)}
	for i, program := range f.programs {
		out, err := expr.Run(program, env)
		if err != nil {
			return false, fmt.Errorf("failed to run filter rule %q: %w", f.sources[i], err)
		}
		if flagged, ok := out.(bool); ok && flagged {
			logger.Info("prompt flagged by local rule: %s", f.sources[i])
			return true, nil
		}
	}
	return false, nil
}

// Remote 远端审核接口客户端
type Remote struct {
	client  *http.Client
	baseURL string
	auth    request.Auth
}

// NewRemote 创建远端审核客户端
func NewRemote(client *http.Client, baseURL string, auth request.Auth) *Remote {
	return &Remote{client: client, baseURL: baseURL, auth: auth}
}

// Check 调用远端审核
func (m *Remote) Check(ctx context.Context, text string) (bool, error) {
	return request.Moderate(ctx, m.client, m.baseURL, m.auth, text)
}

// Chain 审核链，任一环节命中即拦截
type Chain []Moderator

// Check 按顺序审核
func (c Chain) Check(ctx context.Context, text string) (bool, error) {
	for _, moderator := range c {
		flagged, err := moderator.Check(ctx, text)
		if err != nil {
			return false, err
		}
		if flagged {
			return true, nil
		}
	}
	return false, nil
}
