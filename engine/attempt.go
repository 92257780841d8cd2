package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cxykevin/mizar0/provider/request"
	"github.com/cxykevin/mizar0/provider/response"
	providerStructs "github.com/cxykevin/mizar0/provider/structs"
	"github.com/cxykevin/mizar0/storage"
	storageStructs "github.com/cxykevin/mizar0/storage/structs"
)

// outcomeKind 单次尝试结果类别
type outcomeKind uint8

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetry
	outcomeFatal
)

// outcome 单次尝试的带类型结果
type outcome struct {
	kind  outcomeKind
	text  string
	usage *providerStructs.Usage
	cred  *storageStructs.Credentials
	wait  bool // retry前是否退避
	err   error
}

// newBackoff 退避序列 1000/2000/4000/8000/10000ms，无抖动
func newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func optFloat(v float32) *float32 {
	if v < 0 {
		return nil
	}
	return &v
}

func optInt(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

// buildRequest 请求体组装
func (e *Engine) buildRequest(rendered []providerStructs.Message, opts AskOptions) providerStructs.ChatCompletionRequest {
	body := providerStructs.ChatCompletionRequest{
		Model:       e.cfg.ModelID,
		Messages:    rendered,
		Temperature: optFloat(e.cfg.ModelTemperature),
		TopP:        optFloat(e.cfg.ModelTopP),
		MaxTokens:   optInt(e.cfg.MaxTokens),
		User:        opts.UserName,
	}
	if e.cfg.FrequencyPenalty != 0 {
		v := e.cfg.FrequencyPenalty
		body.FrequencyPenalty = &v
	}
	if e.cfg.PresencePenalty != 0 {
		v := e.cfg.PresencePenalty
		body.PresencePenalty = &v
	}
	return body
}

// selectCredential 按路由选凭证，返回凭证与目标端点
func (e *Engine) selectCredential(opts AskOptions) (*storageStructs.Credentials, string, error) {
	if opts.UseAlternate {
		key, err := e.pool.SelectAlternate(e.cfg.AltProviderKeys, e.cfg.AltSelectMode)
		if err != nil {
			return nil, "", err
		}
		cred, err := e.store.GetCredential(key)
		if errors.Is(err, storage.ErrNotFound) {
			cred = &storageStructs.Credentials{Key: key}
		} else if err != nil {
			return nil, "", err
		}
		return cred, e.cfg.AltProviderURL, nil
	}
	cred, err := e.pool.Select()
	if err != nil {
		return nil, "", err
	}
	return cred, e.cfg.ProviderURL, nil
}

// attempt 执行单次补全尝试并分类结果
func (e *Engine) attempt(ctx context.Context, rendered []providerStructs.Message, opts AskOptions, callback StreamCallback) outcome {
	cred, baseURL, err := e.selectCredential(opts)
	if err != nil {
		return outcome{kind: outcomeFatal, err: err}
	}
	auth := request.Auth{
		Key:              cred.Key,
		HeaderName:       e.cfg.AuthHeaderName,
		RouteHeaderName:  e.cfg.RouteHeaderName,
		RouteHeaderValue: e.cfg.RouteHeaderValue,
	}
	body := e.buildRequest(rendered, opts)

	var text string
	var usage *providerStructs.Usage
	if e.cfg.EnableStream {
		var sb strings.Builder
		err = request.ChatStream(ctx, e.client, baseURL, auth, body, func(frame providerStructs.ChatCompletionStream) error {
			if frame.Usage != nil {
				usage = frame.Usage
			}
			for _, choice := range frame.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				sb.WriteString(choice.Delta.Content)
				if callback != nil {
					callback(choice.Delta.Content)
				}
			}
			return nil
		})
		text = sb.String()
	} else {
		var raw []byte
		raw, err = request.Chat(ctx, e.client, baseURL, auth, body)
		if err == nil {
			extracted, ok := response.Extract(raw)
			if !ok {
				return outcome{kind: outcomeRetry, wait: true, cred: cred, err: errors.New("unrecognized response shape")}
			}
			text = extracted
			if u, ok := response.ExtractUsage(raw); ok {
				usage = u
			}
		}
	}

	if err != nil {
		return e.classify(err, cred, opts)
	}
	if text == "" {
		return outcome{kind: outcomeRetry, wait: true, cred: cred, err: errors.New("empty completion")}
	}
	return outcome{kind: outcomeSuccess, text: text, usage: usage, cred: cred}
}

// classify 失败分类，按优先级匹配
func (e *Engine) classify(err error, cred *storageStructs.Credentials, opts AskOptions) outcome {
	var httpErr *request.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests && opts.UseAlternate:
			if e.cfg.DisposableKeys {
				logger.Warn("rate limited, blacklisting alternate key")
				e.pool.Blacklist(cred.Key)
			}
			// 换Key立即重试，不退避
			return outcome{kind: outcomeRetry, wait: false, cred: cred, err: err}
		case httpErr.StatusCode == http.StatusInternalServerError,
			httpErr.StatusCode == http.StatusServiceUnavailable:
			return outcome{kind: outcomeRetry, wait: true, cred: cred, err: err}
		default:
			if msg, ok := response.ExtractErrorMessage(httpErr.Body); ok {
				return outcome{kind: outcomeFatal, err: &ProviderError{StatusCode: httpErr.StatusCode, Message: msg}}
			}
			return outcome{kind: outcomeFatal, err: err}
		}
	}
	return outcome{kind: outcomeFatal, err: err}
}

// complete 带重试的补全执行
// 重试上限在所有失败类别间共享；重试仅在配置了备用池时进行
func (e *Engine) complete(ctx context.Context, rendered []providerStructs.Message, opts AskOptions, callback StreamCallback) (string, *storageStructs.Usage, error) {
	bo := newBackoff()
	retries := 0
	for {
		out := e.attempt(ctx, rendered, opts, callback)
		switch out.kind {
		case outcomeSuccess:
			usage := e.accountUsage(out, rendered)
			return out.text, usage, nil
		case outcomeFatal:
			return "", nil, out.err
		default:
			logger.Warn("attempt failed (retry %d/%d): %v", retries, maxRetries, out.err)
			if retries >= maxRetries || len(e.cfg.AltProviderKeys) == 0 {
				return "", nil, fmt.Errorf("%w: %w", ErrExhausted, out.err)
			}
			retries++
			if out.wait {
				e.sleep(bo.NextBackOff())
			}
		}
	}
}

// accountUsage 优先使用供应商报告的用量，否则本地估算；随后记账
func (e *Engine) accountUsage(out outcome, rendered []providerStructs.Message) *storageStructs.Usage {
	usage := &storageStructs.Usage{}
	if out.usage != nil && out.usage.TotalTokens > 0 {
		usage.PromptTokens = out.usage.PromptTokens
		usage.CompletionTokens = out.usage.CompletionTokens
		usage.TotalTokens = out.usage.TotalTokens
	} else {
		usage.PromptTokens = e.countTokens(rendered)
		usage.CompletionTokens = e.counter(out.text)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	if err := e.pool.RecordUsage(out.cred, usage.TotalTokens); err != nil {
		logger.Error("failed to record credential usage: %v", err)
	}
	return usage
}
