// Package response 响应形态容错解析
//
// 不同上游供应商的成功响应布局并不一致，这里维护一个按优先级排列的
// 提取器列表，逐个尝试，全部失败才算未知形态。
package response

import (
	"encoding/json"
	"strings"

	"github.com/cxykevin/mizar0/provider/structs"
)

// extractor 单个形态提取器，匹配失败返回 false
type extractor func(body []byte) (string, bool)

// 提取器按优先级排列
var extractors = []extractor{
	extractChoices,
	extractResponses,
	extractFragments,
}

// Extract 在已知成功响应形态中提取回复文本
// 未匹配任何形态时返回 false（调用方按可重试的瞬态错误处理）
func Extract(body []byte) (string, bool) {
	for _, ex := range extractors {
		if text, ok := ex(body); ok {
			return text, true
		}
	}
	return "", false
}

// extractChoices choices[0].message.content
func extractChoices(body []byte) (string, bool) {
	var shape struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return "", false
	}
	if len(shape.Choices) == 0 {
		return "", false
	}
	return shape.Choices[0].Message.Content, true
}

// extractResponses responses[0].message.content
func extractResponses(body []byte) (string, bool) {
	var shape struct {
		Responses []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"responses"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return "", false
	}
	if len(shape.Responses) == 0 {
		return "", false
	}
	return shape.Responses[0].Message.Content, true
}

// extractFragments message.content 文本片段数组，空格拼接
// 片段可能是裸字符串或 {"text": ...} 对象
func extractFragments(body []byte) (string, bool) {
	var shape struct {
		Message struct {
			Content []json.RawMessage `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return "", false
	}
	if len(shape.Message.Content) == 0 {
		return "", false
	}
	fragments := make([]string, 0, len(shape.Message.Content))
	for _, raw := range shape.Message.Content {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			fragments = append(fragments, text)
			continue
		}
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.Text != "" {
			fragments = append(fragments, obj.Text)
			continue
		}
		return "", false
	}
	return strings.Join(fragments, " "), true
}

// ExtractUsage 提取供应商报告的token统计
func ExtractUsage(body []byte) (*structs.Usage, bool) {
	var shape struct {
		Usage *structs.Usage `json:"usage"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return nil, false
	}
	if shape.Usage == nil || shape.Usage.TotalTokens == 0 {
		return nil, false
	}
	return shape.Usage, true
}

// ExtractErrorMessage 从错误响应体中提取 error.message
func ExtractErrorMessage(body []byte) (string, bool) {
	var shape structs.ErrorResponse
	if err := json.Unmarshal(body, &shape); err != nil {
		return "", false
	}
	if shape.Error.Message == "" {
		return "", false
	}
	return shape.Error.Message, true
}
