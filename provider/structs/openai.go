package structs

// 消息角色常量
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// 多模态内容类型常量
const (
	PartTypeText  = "text"
	PartTypeImage = "image_url"
	PartTypeFile  = "file"
)

// ChatCompletionRequest ChatCompletion 请求结构体
type ChatCompletionRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      *float32  `json:"temperature,omitempty"`
	TopP             *float32  `json:"top_p,omitempty"`
	MaxTokens        *int      `json:"max_tokens,omitempty"`
	FrequencyPenalty *float32  `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float32  `json:"presence_penalty,omitempty"`
	User             string    `json:"user,omitempty"`
	Stream           bool      `json:"stream"`
}

// Message 消息结构体
// Content 为纯文本字符串或 []ContentPart（多模态），按原顺序重放给远端
type Message struct {
	Role    string `json:"role"` // RoleUser | RoleAssistant | RoleSystem
	Content any    `json:"content"`
}

// ContentPart 多模态内容分片
type ContentPart struct {
	Type     string    `json:"type"` // PartTypeText | PartTypeImage | PartTypeFile
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
	File     *FileRef  `json:"file,omitempty"`
}

// ImageRef 图片引用
type ImageRef struct {
	URL string `json:"url"`
}

// FileRef 文件引用
type FileRef struct {
	FileID   string `json:"file_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// Usage 令牌使用统计
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionStream 流式响应块
type ChatCompletionStream struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// StreamChoice 流式选择项
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// StreamDelta 流式增量消息
type StreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ModerationRequest 审核请求
type ModerationRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

// ModerationResponse 审核响应
type ModerationResponse struct {
	Results []ModerationResult `json:"results"`
}

// ModerationResult 审核结果
type ModerationResult struct {
	Flagged bool `json:"flagged"`
}

// ErrorResponse API 错误响应
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// APIError API 错误信息
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   any    `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}
