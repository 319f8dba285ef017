package updater

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"AytoSync/internal/config"
	"AytoSync/internal/model"
	"AytoSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidManifest manifest 缺少 version/dataHash/released
	ErrInvalidManifest = errors.New("manifest 格式错误")
	// ErrNoSnapshotSource 所有候选地址都没有可用快照
	ErrNoSnapshotSource = errors.New("没有可用的快照数据源")
)

// APIError 后端返回非 2xx
type APIError struct {
	Method  string
	URL     string
	Status  int
	Details string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// Client 访问后端 REST API 与静态托管的 manifest/快照
type Client struct {
	apiBaseURL  string
	manifestURL string
	dataSources []string
	timeout     time.Duration
	httpClient  *http.Client
	logger      *logrus.Logger
}

func NewClient(cfg config.UpdaterConfig, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiBaseURL:  strings.TrimSuffix(cfg.APIBaseURL, "/"),
		manifestURL: cfg.ManifestURL,
		dataSources: cfg.DataSources,
		timeout:     timeout,
		httpClient:  httpclient.NewHTTPClient(cfg, logger),
		logger:      logger,
	}
}

// do 发送请求并读取完整响应体，每次请求单独设置超时
func (c *Client) do(ctx context.Context, method, url string, body []byte, noCache bool) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if noCache {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s 请求失败: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s 读取响应失败: %w", method, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Method: method, URL: url, Status: resp.StatusCode, Details: errorDetails(respBody)}
	}
	return respBody, nil
}

// errorDetails 优先取后端 {details} / {error}，否则返回原始响应
func errorDetails(body []byte) string {
	var e struct {
		Error   string          `json:"error"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if len(e.Details) > 0 && string(e.Details) != "null" {
			var s string
			if json.Unmarshal(e.Details, &s) == nil {
				return s
			}
			return string(e.Details)
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(body))
}

func (c *Client) api(path string) string {
	return c.apiBaseURL + path
}

// FetchManifest 拉取并校验 manifest
func (c *Client) FetchManifest(ctx context.Context) (*model.Manifest, error) {
	body, err := c.do(ctx, http.MethodGet, c.manifestURL, nil, true)
	if err != nil {
		return nil, err
	}
	var m model.Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	var missing []string
	if m.Version == "" {
		missing = append(missing, "version")
	}
	if m.DataHash == "" {
		missing = append(missing, "dataHash")
	}
	if m.Released == "" {
		missing = append(missing, "released")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: 缺少字段 %s", ErrInvalidManifest, strings.Join(missing, ", "))
	}
	return &m, nil
}

// FetchSnapshot 按顺序尝试候选地址，返回第一个含 participants 数组的快照，
// 并在文档上设置 clearBeforeImport=true 以便直接提交给 /import
func (c *Client) FetchSnapshot(ctx context.Context) ([]byte, string, error) {
	for _, source := range c.dataSources {
		body, err := c.do(ctx, http.MethodGet, source, nil, true)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			c.logger.WithError(err).WithField("source", source).Warn("快照数据源不可用，尝试下一个")
			continue
		}
		doc, ok := asSnapshot(body)
		if !ok {
			c.logger.WithField("source", source).Warn("快照格式不符（缺少 participants 数组），尝试下一个")
			continue
		}
		doc["clearBeforeImport"] = json.RawMessage("true")
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, "", err
		}
		return out, source, nil
	}
	return nil, "", ErrNoSnapshotSource
}

func asSnapshot(body []byte) (map[string]json.RawMessage, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		return nil, false
	}
	var participants []json.RawMessage
	raw, ok := doc["participants"]
	if !ok || len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	if err := json.Unmarshal(raw, &participants); err != nil {
		return nil, false
	}
	return doc, true
}

// Import 提交导入载荷
func (c *Client) Import(ctx context.Context, payload []byte) (*model.ImportResult, error) {
	body, err := c.do(ctx, http.MethodPost, c.api("/import"), payload, false)
	if err != nil {
		return nil, err
	}
	var result model.ImportResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("导入响应解析失败: %w", err)
	}
	return &result, nil
}

// GetMeta key 不存在时 ok=false
func (c *Client) GetMeta(ctx context.Context, key string) (string, bool, error) {
	body, err := c.do(ctx, http.MethodGet, c.api("/meta/"+key), nil, true)
	if err != nil {
		return "", false, err
	}
	var resp struct {
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, fmt.Errorf("meta 响应解析失败: %w", err)
	}
	if resp.Value == nil {
		return "", false, nil
	}
	return *resp.Value, true, nil
}

func (c *Client) SetMeta(ctx context.Context, key, value string) error {
	payload, err := json.Marshal(map[string]string{"key": key, "value": value})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, c.api("/meta"), payload, false)
	return err
}

// Stats 空库探测
func (c *Client) Stats(ctx context.Context) (*model.EntityCounts, error) {
	body, err := c.do(ctx, http.MethodGet, c.api("/stats"), nil, true)
	if err != nil {
		return nil, err
	}
	var counts model.EntityCounts
	if err := json.Unmarshal(body, &counts); err != nil {
		return nil, fmt.Errorf("stats 响应解析失败: %w", err)
	}
	return &counts, nil
}

// Export 原样返回 /export 文档
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.api("/export"), nil, true)
}

// FixSequences 触发服务端自增序列修复，返回原始响应
func (c *Client) FixSequences(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.api("/meta/fix-sequences"), nil, false)
}

// Integrity 返回服务端完整性检查报告
func (c *Client) Integrity(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.api("/integrity"), nil, true)
}
