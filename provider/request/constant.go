package request

import "time"

// ChatCompletionsEndpoint ChatCompletion 路径
const ChatCompletionsEndpoint = "/chat/completions"

// ModerationsEndpoint 审核路径
const ModerationsEndpoint = "/moderations"

// SSEDataPrefix SSE数据行前缀
const SSEDataPrefix = "data:"

// SSEDoneMarker SSE结束标记
const SSEDoneMarker = "[DONE]"

// Timeout 请求超时时间
const Timeout = 300 * time.Second
