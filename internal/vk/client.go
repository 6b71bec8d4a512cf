// Package vk is a minimal VK API client implementing poster.RemotePoster.
package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"vkrelay/internal/poster"
	"vkrelay/pkg/logx"
)

const (
	DefaultBaseURL    = "https://api.vk.com/method/"
	DefaultAPIVersion = "5.131"
	DefaultRatePerSec = 3.0

	methodWallPost       = "wall.post"
	methodWallDelete     = "wall.delete"
	methodAccountGetInfo = "account.getInfo"

	maxResponseBytes = 1 << 20
)

type Config struct {
	BaseURL    string
	APIVersion string
	RatePerSec float64
	HTTPClient *http.Client
	Logger     logx.Logger
}

// Client calls the VK API with the token held in a CredentialSource. All
// calls share one rate limiter.
type Client struct {
	baseURL string
	version string
	http    *http.Client
	cred    poster.CredentialSource
	limiter *rate.Limiter
	log     logx.Logger
}

var _ poster.RemotePoster = (*Client)(nil)

func New(cfg Config, cred poster.CredentialSource) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	log := cfg.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		version: cfg.APIVersion,
		http:    cfg.HTTPClient,
		cred:    cred,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:     log.With(logx.String("comp", "vk")),
	}
}

// SetRate changes the shared call rate. Non-positive values restore the default.
func (c *Client) SetRate(perSec float64) {
	if perSec <= 0 {
		perSec = DefaultRatePerSec
	}
	c.limiter.SetLimit(rate.Limit(perSec))
}

// PostURL is the public link of a community wall post.
func PostURL(group poster.Target, postID int64) string {
	id := int64(group)
	if id < 0 {
		id = -id
	}
	return fmt.Sprintf("https://vk.com/wall-%d_%d", id, postID)
}

func ownerID(group poster.Target) string {
	id := int64(group)
	if id > 0 {
		id = -id
	}
	return strconv.FormatInt(id, 10)
}

func (c *Client) token(method string) (string, error) {
	tok, ok := c.cred.Current()
	if !ok {
		return "", errors.WithHint(
			errors.Wrapf(poster.ErrUnauthenticated, "vk %s: no credential", method),
			"set a token with /token",
		)
	}
	return tok, nil
}

// Publish posts payload to the community wall on behalf of the community.
func (c *Client) Publish(ctx context.Context, target poster.Target, payload string) (poster.PostHandle, error) {
	tok, err := c.token(methodWallPost)
	if err != nil {
		return poster.PostHandle{}, err
	}
	params := url.Values{
		"owner_id":   {ownerID(target)},
		"from_group": {"1"},
		"message":    {payload},
	}
	var out struct {
		PostID int64 `json:"post_id"`
	}
	if err := c.call(ctx, methodWallPost, tok, params, &out); err != nil {
		return poster.PostHandle{}, err
	}
	if out.PostID == 0 {
		return poster.PostHandle{}, errors.Wrapf(poster.ErrTransport, "vk %s: response without post_id", methodWallPost)
	}
	return poster.PostHandle{PostID: out.PostID, Locator: PostURL(target, out.PostID)}, nil
}

// Retract deletes a wall post.
func (c *Client) Retract(ctx context.Context, target poster.Target, h poster.PostHandle) error {
	tok, err := c.token(methodWallDelete)
	if err != nil {
		return err
	}
	params := url.Values{
		"owner_id": {ownerID(target)},
		"post_id":  {strconv.FormatInt(h.PostID, 10)},
	}
	var out int
	return c.call(ctx, methodWallDelete, tok, params, &out)
}

// AccountInfo is the subset of account.getInfo the bot shows.
type AccountInfo struct {
	Country string `json:"country,omitempty"`
	Lang    int    `json:"lang,omitempty"`
}

// Validate checks token with account.getInfo without touching the
// credential cell.
func (c *Client) Validate(ctx context.Context, token string) (AccountInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AccountInfo{}, errors.Wrapf(poster.ErrUnauthenticated, "vk %s: empty token", methodAccountGetInfo)
	}
	var info AccountInfo
	if err := c.call(ctx, methodAccountGetInfo, token, url.Values{}, &info); err != nil {
		return AccountInfo{}, err
	}
	return info, nil
}

// Probe validates the current credential.
func (c *Client) Probe(ctx context.Context) error {
	tok, err := c.token(methodAccountGetInfo)
	if err != nil {
		return err
	}
	_, err = c.Validate(ctx, tok)
	return err
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *struct {
		Code int    `json:"error_code"`
		Msg  string `json:"error_msg"`
	} `json:"error"`
}

// call performs one rate-limited round trip. The token is sent in the
// form body and never logged.
func (c *Client) call(ctx context.Context, method, token string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(poster.ErrTransport, "vk %s: rate wait: %v", method, err)
	}
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("access_token", token)
	form.Set("v", c.version)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrapf(poster.ErrTransport, "vk %s: build request: %v", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(poster.ErrTransport, "vk %s: %v", method, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.Wrapf(poster.ErrTransport, "vk %s: read body: %v", method, err)
	}
	c.log.Debug("vk call", logx.String("method", method), logx.Int("status", resp.StatusCode), logx.Duration("took", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(poster.ErrTransport, "vk %s: http status %d", method, resp.StatusCode)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return errors.Wrapf(poster.ErrTransport, "vk %s: decode: %v", method, err)
	}
	if env.Error != nil {
		apiErr := &APIError{Method: method, Code: env.Error.Code, Msg: env.Error.Msg, kind: classify(method, env.Error.Code)}
		wrapped := errors.WithStack(apiErr)
		if errors.Is(apiErr, poster.ErrUnauthenticated) {
			wrapped = errors.WithHint(wrapped, "the token was rejected; set a new one with /token")
		}
		return wrapped
	}
	if out != nil && len(env.Response) > 0 {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return errors.Wrapf(poster.ErrTransport, "vk %s: decode response: %v", method, err)
		}
	}
	return nil
}
