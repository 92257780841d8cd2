// Package request 远端HTTP传输层
package request

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/cxykevin/mizar0/log"
	"github.com/cxykevin/mizar0/product"
	"github.com/cxykevin/mizar0/provider/structs"
	"golang.org/x/net/proxy"
)

var logger *log.LogsObj

func init() {
	logger = log.New("request")
}

// Auth 鉴权与路由头参数
type Auth struct {
	Key              string
	HeaderName       string // 空则使用 Authorization: Bearer
	RouteHeaderName  string
	RouteHeaderValue string
}

// HTTPError 非2xx响应
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, string(e.Body))
}

// NewClient 创建HTTP客户端，proxyURL 非空时走 SOCKS5 代理
func NewClient(proxyURL string) (*http.Client, error) {
	client := &http.Client{Timeout: Timeout}
	if proxyURL == "" {
		return client, nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy url: %w", err)
	}
	dialer, err := proxy.FromURL(parsed, &net.Dialer{})
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy dialer: %w", err)
	}
	client.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
	}
	return client, nil
}

func setHeaders(req *http.Request, auth Auth) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", product.UserAgent)
	if auth.HeaderName != "" {
		req.Header.Set(auth.HeaderName, auth.Key)
	} else {
		req.Header.Set("Authorization", "Bearer "+auth.Key)
	}
	if auth.RouteHeaderName != "" {
		req.Header.Set(auth.RouteHeaderName, auth.RouteHeaderValue)
	}
}

// Chat 发送单次 ChatCompletion 请求（非流式）
// 成功时返回原始响应体，供上层做形态容错解析；非200返回 *HTTPError
func Chat(ctx context.Context, client *http.Client, baseURL string, auth Auth, body structs.ChatCompletionRequest) ([]byte, error) {
	body.Stream = false
	logger.Info("call chat: %s", baseURL+ChatCompletionsEndpoint)

	// 序列化请求体
	payload, err := json.Marshal(body)
	if err != nil {
		logger.Error("call chat error when marshal: %v", err)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// 创建HTTP请求
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+ChatCompletionsEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		logger.Error("call chat error when create request: %v", err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	setHeaders(req, auth)

	// 发送请求
	resp, err := client.Do(req)
	if err != nil {
		logger.Error("call chat error when call: %v", err)
		return nil, fmt.Errorf("failed to send request when call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("call chat error when read response body: %v", err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// 检查HTTP状态码
	if resp.StatusCode != http.StatusOK {
		logger.Error("call chat http error: %d", resp.StatusCode)
		logger.Debug("error body: %s", string(respBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: respBody}
	}
	return respBody, nil
}

// ChatStream 发送 ChatCompletion 请求（强制stream=true）
// 逐帧解析SSE并回调；data: [DONE] 结束流且不回调
func ChatStream(ctx context.Context, client *http.Client, baseURL string, auth Auth, body structs.ChatCompletionRequest, callback func(structs.ChatCompletionStream) error) error {
	body.Stream = true
	logger.Info("call chat stream: %s", baseURL+ChatCompletionsEndpoint)

	// 序列化请求体
	payload, err := json.Marshal(body)
	if err != nil {
		logger.Error("call chat stream error when marshal: %v", err)
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	// 创建HTTP请求
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+ChatCompletionsEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		logger.Error("call chat stream error when create request: %v", err)
		return fmt.Errorf("failed to create request: %w", err)
	}
	setHeaders(req, auth)

	// 发送请求
	resp, err := client.Do(req)
	if err != nil {
		logger.Error("call chat stream error when call: %v", err)
		return fmt.Errorf("failed to send request when call: %w", err)
	}
	defer resp.Body.Close()

	// 检查HTTP状态码
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Error("call chat stream http error: %d", resp.StatusCode)
		logger.Debug("error body: %s", string(respBody))
		return &HTTPError{StatusCode: resp.StatusCode, Body: respBody}
	}

	// 读取流式响应
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			logger.Error("call chat stream error when read: %v", err)
			return fmt.Errorf("failed to read response: %w", err)
		}

		// 跳过空行和注释行
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
			continue
		}

		// 解析data:开头的行
		if after, ok := strings.CutPrefix(line, SSEDataPrefix); ok {
			data := strings.TrimSpace(after)

			// 检查是否是结束标记
			if data == SSEDoneMarker {
				break
			}

			// 解析响应
			var frame structs.ChatCompletionStream
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				logger.Error("call chat stream error when unmarshal: %v", err)
				logger.Debug("error body: %s", data)
				return fmt.Errorf("failed to unmarshal response: %w", err)
			}

			// 调用回调函数处理响应
			if err := callback(frame); err != nil {
				logger.Error("call chat stream error when callback: %v", err)
				return fmt.Errorf("callback error: %w", err)
			}
		}
	}

	return nil
}

// Moderate 调用远端审核接口
func Moderate(ctx context.Context, client *http.Client, baseURL string, auth Auth, input string) (bool, error) {
	logger.Info("call moderation: %s", baseURL+ModerationsEndpoint)

	payload, err := json.Marshal(structs.ModerationRequest{Input: input})
	if err != nil {
		return false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+ModerationsEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	setHeaders(req, auth)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("call moderation error when call: %v", err)
		return false, fmt.Errorf("failed to send request when call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Error("call moderation http error: %d", resp.StatusCode)
		return false, &HTTPError{StatusCode: resp.StatusCode, Body: respBody}
	}

	var modResp structs.ModerationResponse
	if err := json.Unmarshal(respBody, &modResp); err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	for _, result := range modResp.Results {
		if result.Flagged {
			return true, nil
		}
	}
	return false, nil
}

// FetchDataURI 拉取图片并转为base64 data URI
func FetchDataURI(ctx context.Context, client *http.Client, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", product.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: respBody}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read image body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
