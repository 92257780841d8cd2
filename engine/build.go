package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cxykevin/mizar0/prompts"
	"github.com/cxykevin/mizar0/provider/request"
	providerStructs "github.com/cxykevin/mizar0/provider/structs"
	storageStructs "github.com/cxykevin/mizar0/storage/structs"
	"github.com/google/uuid"
)

func newMessageID() string {
	return uuid.NewString()
}

// sceneData 场景模板参数
type sceneData struct {
	GroupName string
	UserName  string
}

// instruction 组装系统指令：基础指令 + 人设 + 场景块
func (e *Engine) instruction(opts AskOptions) string {
	var sb strings.Builder

	if e.cfg.SystemTemplate != "" {
		sb.WriteString(e.cfg.SystemTemplate)
	} else {
		sb.WriteString(prompts.Render(prompts.BaseTemplate, struct{ ModelName string }{ModelName: e.cfg.ModelName}))
	}

	if opts.Persona != "" {
		sb.WriteString("\n\n")
		sb.WriteString(opts.Persona)
	}

	data := sceneData{GroupName: opts.GroupName, UserName: opts.UserName}
	if data.UserName == "" {
		data.UserName = "user"
	}
	sb.WriteString("\n\n")
	switch {
	case strings.HasPrefix(strings.ToLower(opts.GroupName), "roleplay"):
		sb.WriteString(prompts.Render(prompts.RoleplayTemplate, data))
	case opts.GroupName != "":
		sb.WriteString(prompts.Render(prompts.GroupTemplate, data))
	default:
		sb.WriteString(prompts.Render(prompts.DirectTemplate, data))
	}
	return sb.String()
}

// resolveImage 图片转data URI，固定间隔重试
func (e *Engine) resolveImage(ctx context.Context, imageURL string) (string, error) {
	var lastErr error
	for i := 0; i < imageFetchRetries; i++ {
		if i > 0 {
			e.sleep(imageFetchDelay)
		}
		dataURI, err := request.FetchDataURI(ctx, e.client, imageURL)
		if err == nil {
			return dataURI, nil
		}
		lastErr = err
		logger.Warn("fetch image failed (attempt %d): %v", i+1, err)
	}
	return "", fmt.Errorf("failed to inline image after %d attempts: %w", imageFetchRetries, lastErr)
}

// renderParts 多模态分片渲染，保持插入顺序
func (e *Engine) renderParts(ctx context.Context, parts []storageStructs.ContentPart) ([]providerStructs.ContentPart, error) {
	rendered := make([]providerStructs.ContentPart, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case storageStructs.PartTypeText:
			rendered = append(rendered, providerStructs.ContentPart{
				Type: providerStructs.PartTypeText,
				Text: part.Text,
			})
		case storageStructs.PartTypeImage:
			url := part.URL
			if e.cfg.InlineImages {
				dataURI, err := e.resolveImage(ctx, part.URL)
				if err != nil {
					return nil, err
				}
				url = dataURI
			}
			rendered = append(rendered, providerStructs.ContentPart{
				Type:     providerStructs.PartTypeImage,
				ImageURL: &providerStructs.ImageRef{URL: url},
			})
		case storageStructs.PartTypeFile:
			rendered = append(rendered, providerStructs.ContentPart{
				Type: providerStructs.PartTypeFile,
				File: &providerStructs.FileRef{FileName: part.FileName},
			})
		}
	}
	return rendered, nil
}

// renderMessages 会话渲染为请求消息列表，槽位0放系统指令
func (e *Engine) renderMessages(ctx context.Context, conv *storageStructs.Conversations, instruction string) ([]providerStructs.Message, error) {
	rendered := make([]providerStructs.Message, 0, len(conv.Messages)+2)

	if e.cfg.NoSystemRole {
		rendered = append(rendered, providerStructs.Message{
			Role:    providerStructs.RoleUser,
			Content: instruction,
		})
		// 会话已以助手消息开头时不再补确认，避免重试时重复
		if len(conv.Messages) == 0 || conv.Messages[0].Type != storageStructs.MessagesRoleAssistant {
			rendered = append(rendered, providerStructs.Message{
				Role:    providerStructs.RoleAssistant,
				Content: prompts.AckAssistant,
			})
		}
	} else {
		rendered = append(rendered, providerStructs.Message{
			Role:    providerStructs.RoleSystem,
			Content: instruction,
		})
	}

	for i := range conv.Messages {
		msg := &conv.Messages[i]
		role := providerStructs.RoleUser
		if msg.Type == storageStructs.MessagesRoleAssistant {
			role = providerStructs.RoleAssistant
		}
		if len(msg.Parts) == 0 {
			rendered = append(rendered, providerStructs.Message{Role: role, Content: msg.Content})
			continue
		}
		parts, err := e.renderParts(ctx, msg.Parts)
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, providerStructs.Message{Role: role, Content: parts})
	}
	return rendered, nil
}

// messageTokens 单条渲染消息的token估算（图片引用不计入）
func (e *Engine) messageTokens(msg *providerStructs.Message) int {
	switch content := msg.Content.(type) {
	case string:
		return e.counter(content)
	case []providerStructs.ContentPart:
		total := 0
		for _, part := range content {
			if part.Text != "" {
				total += e.counter(part.Text)
			}
			if part.File != nil {
				total += e.counter(part.File.FileName)
			}
		}
		return total
	}
	return 0
}

func (e *Engine) countTokens(rendered []providerStructs.Message) int {
	total := 0
	for i := range rendered {
		total += e.messageTokens(&rendered[i])
	}
	return total
}

// buildContext 追加新用户消息并渲染上下文，超预算时逐条归档最旧消息
// 消息全部淘汰后仍超预算时直接发送超长指令（记录降级日志）
func (e *Engine) buildContext(ctx context.Context, conv *storageStructs.Conversations, prompt string, opts AskOptions) ([]providerStructs.Message, error) {
	if prompt != "" || len(opts.Parts) > 0 {
		conv.Messages = append(conv.Messages, storageStructs.Message{
			ID:      newMessageID(),
			Type:    storageStructs.MessagesRoleUser,
			Content: prompt,
			Parts:   opts.Parts,
			Time:    time.Now().Unix(),
		})
	}

	instruction := e.instruction(opts)
	for {
		rendered, err := e.renderMessages(ctx, conv, instruction)
		if err != nil {
			return nil, err
		}
		total := e.countTokens(rendered)
		if e.cfg.MaxTokens > 0 {
			total += e.cfg.MaxTokens
		}
		if total <= e.cfg.TokenBudget {
			conv.LastActive = time.Now().Unix()
			return rendered, nil
		}
		if len(conv.Messages) == 0 {
			logger.Warn("instruction alone exceeds token budget (%d > %d), sending as-is", total, e.cfg.TokenBudget)
			conv.LastActive = time.Now().Unix()
			return rendered, nil
		}
		logger.Debug("context over budget (%d > %d), evicting oldest of %d messages", total, e.cfg.TokenBudget, len(conv.Messages))
		e.archive.EvictOldest(conv, instruction)
	}
}
