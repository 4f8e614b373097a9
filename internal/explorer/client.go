// Package explorer 对接 Etherscan 兼容的合约源码验证接口
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/d60-Lab/qutee-media/config"
	"github.com/d60-Lab/qutee-media/pkg/logger"
)

var (
	ErrAlreadyVerified = errors.New("contract source code already verified")
	ErrMissingAPIKey   = errors.New("explorer api key not configured")
)

// APIError 接口返回 status != "1"
type APIError struct {
	Action  string
	Message string
	Result  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("explorer %s: %s (%s)", e.Action, e.Message, e.Result)
}

// VerifyState 验证状态
type VerifyState int

const (
	StatePending VerifyState = iota
	StateVerified
	StateFailed
)

func (s VerifyState) String() string {
	switch s {
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Status checkverifystatus 的结果
type Status struct {
	State   VerifyState
	Message string
}

// SourceRequest 提交验证所需字段
type SourceRequest struct {
	Address         string
	ContractName    string
	SourceCode      string
	CompilerVersion string
	Optimization    bool
	Runs            int
	ConstructorArgs string // ABI 编码，不带 0x
	LicenseType     int
}

// Client Etherscan 兼容 API 客户端
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient 使用连接池化的 http.Client
func NewClient(cfg config.ExplorerConfig) *Client {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = 30 * time.Second
	return NewClientWithHTTP(cfg.APIURL, cfg.APIKey, hc)
}

func NewClientWithHTTP(baseURL, apiKey string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey, http: hc}
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// VerifySource 提交源码，返回查询用的 GUID
func (c *Client) VerifySource(ctx context.Context, req SourceRequest) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	form := url.Values{}
	form.Set("apikey", c.apiKey)
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", req.Address)
	form.Set("sourceCode", req.SourceCode)
	form.Set("codeformat", "solidity-single-file")
	form.Set("contractname", req.ContractName)
	form.Set("compilerversion", req.CompilerVersion)
	form.Set("optimizationUsed", boolFlag(req.Optimization))
	form.Set("runs", strconv.Itoa(req.Runs))
	// 字段名拼写沿用接口定义
	form.Set("constructorArguements", req.ConstructorArgs)
	form.Set("licenseType", strconv.Itoa(orDefault(req.LicenseType, 3)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	if resp.Status != "1" {
		if isAlreadyVerified(resp.Result) {
			return "", ErrAlreadyVerified
		}
		return "", &APIError{Action: "verifysourcecode", Message: resp.Message, Result: resp.Result}
	}
	logger.Info("source submitted for verification",
		zap.String("address", req.Address),
		zap.String("guid", resp.Result),
	)
	return resp.Result, nil
}

// CheckStatus 查询一次验证状态
func (c *Client) CheckStatus(ctx context.Context, guid string) (Status, error) {
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("module", "contract")
	q.Set("action", "checkverifystatus")
	q.Set("guid", guid)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := c.do(httpReq)
	if err != nil {
		return Status{}, err
	}

	switch {
	case resp.Status == "1":
		return Status{State: StateVerified, Message: resp.Result}, nil
	case isAlreadyVerified(resp.Result):
		return Status{State: StateVerified, Message: resp.Result}, nil
	case strings.Contains(strings.ToLower(resp.Result), "pending"):
		return Status{State: StatePending, Message: resp.Result}, nil
	default:
		return Status{State: StateFailed, Message: resp.Result}, nil
	}
}

var errStillPending = errors.New("verification pending")

// pollMaxElapsed 轮询总时长上限，0 表示只受 ctx 约束
var pollMaxElapsed time.Duration

// WaitVerified 按固定间隔轮询直到验证完成、失败或 ctx 结束
func (c *Client) WaitVerified(ctx context.Context, guid string, interval time.Duration) (Status, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	st, err := backoff.Retry(ctx, func() (Status, error) {
		st, err := c.CheckStatus(ctx, guid)
		if err != nil {
			return st, err
		}
		switch st.State {
		case StateVerified:
			return st, nil
		case StateFailed:
			return st, backoff.Permanent(&APIError{Action: "checkverifystatus", Message: "NOTOK", Result: st.Message})
		default:
			logger.Debug("verification pending", zap.String("guid", guid), zap.String("message", st.Message))
			return st, errStillPending
		}
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(pollMaxElapsed),
	)
	if err != nil && ctx.Err() != nil {
		return st, ctx.Err()
	}
	return st, err
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer request: unexpected http status %d", resp.StatusCode)
	}
	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode explorer response: %w", err)
	}
	return &out, nil
}

func isAlreadyVerified(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "already verified")
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
