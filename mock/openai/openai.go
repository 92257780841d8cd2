// Package openai 一个兼容 OpenAI API 的模拟服务器（带故障注入）
//
// 使用说明:
//
//  1. 启动:
//     测试内调用 StartServerTask()，或设置 MIZAR0_DEBUG_MOCKSERVER=true 后调用 Start()。
//     服务器在 http://localhost:56109 监听。
//
//  2. API 端点:
//
//     a) 聊天补全 POST /v1/chat/completions
//     普通模型返回固定回复；模型名含 "echo" 时原样返回最后一条消息。
//     stream: true 时按词切分返回 Server-Sent Events，以 data: [DONE] 结束。
//
//     b) 内容审核 POST /v1/moderations
//     输入包含 "unsafe" 时 flagged=true。
//
//     c) 模型列表 GET /v1/models
//
//  3. 故障注入（按 Bearer Key 触发，用于重试路径测试）:
//     - mock-rate-limit   固定返回 429
//     - mock-unstable     前2次返回 503，之后正常
//     - mock-bad-shape    返回未知JSON形态
//     - mock-bad-request  返回 400 + error.message
//
//  4. 注意事项:
//     - Token 计算基于简单的空格分词，仅供参考
//     - 模型名含 "-flash" 时关闭流式逐词延迟
package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Addr 服务端口号
const Addr = ":56109"

// 故障注入Key
const (
	KeyRateLimit  = "mock-rate-limit"
	KeyUnstable   = "mock-unstable"
	KeyBadShape   = "mock-bad-shape"
	KeyBadRequest = "mock-bad-request"
)

// Models 可用的模型列表
var Models = []Model{
	{ID: "test-chat", Object: "model", Created: time.Now().Unix(), OwnedBy: "mock"},
	{ID: "test-chat-flash", Object: "model", Created: time.Now().Unix(), OwnedBy: "mock"},
	{ID: "echo-chat", Object: "model", Created: time.Now().Unix(), OwnedBy: "mock"},
	{ID: "echo-chat-flash", Object: "model", Created: time.Now().Unix(), OwnedBy: "mock"},
}

// ChatCompletionRequest 聊天补全请求
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
}

// Message 消息结构
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse 聊天补全响应
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice 选择项，非流式走 Message，流式走 Delta
type Choice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	Delta        *Message `json:"delta,omitempty"`
	FinishReason string   `json:"finish_reason"`
}

// Usage 使用情况统计
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModerationRequest 审核请求
type ModerationRequest struct {
	Input string `json:"input"`
}

// ModerationResponse 审核响应
type ModerationResponse struct {
	Results []ModerationResult `json:"results"`
}

// ModerationResult 审核结果
type ModerationResult struct {
	Flagged bool `json:"flagged"`
}

// ModelsResponse 模型列表响应
type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// Model 模型信息
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

var unstableCalls atomic.Int32

// ResetFaults 重置故障注入计数（测试之间调用）
func ResetFaults() {
	unstableCalls.Store(0)
}

func generateID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func calculateTokens(text string) int {
	return len(strings.Fields(text))
}

func bearerKey(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// injectFault 按Key注入故障，返回true表示响应已写出
func injectFault(w http.ResponseWriter, r *http.Request) bool {
	switch bearerKey(r) {
	case KeyRateLimit:
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return true
	case KeyUnstable:
		if unstableCalls.Add(1) <= 2 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return true
		}
	case KeyBadShape:
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"result":"something entirely different"}`)
		return true
	case KeyBadRequest:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"mock rejects this request","type":"invalid_request_error"}}`)
		return true
	}
	return false
}

func responseFor(req ChatCompletionRequest) string {
	if strings.Contains(req.Model, "echo") && len(req.Messages) > 0 {
		return req.Messages[len(req.Messages)-1].Content
	}
	return fmt.Sprintf("This is a mock response from model %s. Your message was received and processed.", req.Model)
}

func handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if injectFault(w, r) {
		return
	}

	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Stream {
		handleStreamingChatCompletion(w, req)
		return
	}

	promptTokens := 0
	for _, msg := range req.Messages {
		promptTokens += calculateTokens(msg.Content)
	}
	responseText := responseFor(req)
	completionTokens := calculateTokens(responseText)

	resp := ChatCompletionResponse{
		ID:      generateID("chatcmpl"),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      &Message{Role: "assistant", Content: responseText},
				FinishReason: "stop",
			},
		},
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func handleStreamingChatCompletion(w http.ResponseWriter, req ChatCompletionRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	promptTokens := 0
	for _, msg := range req.Messages {
		promptTokens += calculateTokens(msg.Content)
	}
	responseText := responseFor(req)
	completionTokens := calculateTokens(responseText)

	responseID := generateID("chatcmpl")
	created := time.Now().Unix()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	words := strings.Fields(responseText)
	for i, word := range words {
		delta := word
		if i < len(words)-1 {
			delta += " "
		}

		resp := ChatCompletionResponse{
			ID:      responseID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []Choice{
				{
					Index:        0,
					Delta:        &Message{Role: "assistant", Content: delta},
					FinishReason: "stop",
				},
			},
			Usage: Usage{
				PromptTokens:     promptTokens,
				CompletionTokens: completionTokens,
				TotalTokens:      promptTokens + completionTokens,
			},
		}

		data, err := json.Marshal(resp)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)

		if !strings.Contains(req.Model, "-flash") {
			flusher.Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func handleModeration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ModerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp := ModerationResponse{
		Results: []ModerationResult{
			{Flagged: strings.Contains(strings.ToLower(req.Input), "unsafe")},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := ModelsResponse{Object: "list", Data: Models}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

var waitChan chan bool

// StartServer 启动服务器
func StartServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", handleChatCompletion)
	mux.HandleFunc("/v1/moderations", handleModeration)
	mux.HandleFunc("/v1/models", handleModels)

	server := &http.Server{
		Addr:    Addr,
		Handler: mux,
	}

	fmt.Println("Mock OpenAI-compatible API server running on http://localhost" + server.Addr)

	waitChan <- true
	if err := server.ListenAndServe(); err != nil {
		fmt.Printf("Server failed to start: %v\n", err)
		panic(err)
	}
}

// StartServerTask 启动服务器任务
func StartServerTask() {
	waitChan = make(chan bool)
	go StartServer()
	<-waitChan
	time.Sleep(100 * time.Millisecond)
}

// Start 检查环境变量并启动服务器
func Start() {
	if os.Getenv("MIZAR0_DEBUG_MOCKSERVER") == "true" {
		StartServerTask()
	}
}
