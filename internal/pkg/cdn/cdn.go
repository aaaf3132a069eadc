package cdn

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

	"github.com/qs3c/inkpress/config"
)

var ErrUnexpectedStatusCode = errors.New("unexpected status code")

// Purger 调用 CDN 清除缓存接口
type Purger struct {
	purgeURL string
	token    string
	baseURL  string
	client   *http.Client
}

func NewPurger(cfg config.CDNConfig, baseURL string) *Purger {
	return &Purger{
		purgeURL: cfg.PurgeURL,
		token:    cfg.APIToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled 未配置 purge_url 时清除为空操作
func (p *Purger) Enabled() bool {
	return p.purgeURL != ""
}

// Purge 按路径清除缓存，路径会拼接站点地址
func (p *Purger) Purge(ctx context.Context, paths ...string) error {
	if !p.Enabled() || len(paths) == 0 {
		return nil
	}

	files := make([]string, 0, len(paths))
	for _, path := range paths {
		files = append(files, p.baseURL+path)
	}

	body, err := json.Marshal(map[string][]string{"files": files})
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.purgeURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %d: %s", ErrUnexpectedStatusCode, resp.StatusCode, string(msg))
	}
	return nil
}
