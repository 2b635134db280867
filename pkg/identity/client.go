// Package identity 外部学员身份服务的客户端，只在报表中使用
package identity

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"learning_progress_backend/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// ErrUnavailable 身份服务不可达或返回 5xx
var ErrUnavailable = errors.New("identity service unavailable")

type Learner struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type lookupResponse struct {
	Data []Learner `json:"data"`
}

type Client struct {
	http *resty.Client
}

func NewClient(cfg config.IdentityConfig) *Client {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		c.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &Client{http: c}
}

// LookupLearners 批量查询学员信息，服务端未返回的ID不出现在结果中
func (c *Client) LookupLearners(ctx context.Context, tenantID, organizationID string, ids []uint) (map[uint]Learner, error) {
	result := make(map[uint]Learner, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatUint(uint64(id), 10))
	}

	var body lookupResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Tenant-ID", tenantID).
		SetHeader("X-Organization-ID", organizationID).
		SetQueryParam("ids", strings.Join(parts, ",")).
		SetResult(&body).
		Get("/api/learners")
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, errors.Wrapf(ErrUnavailable, "status %d", resp.StatusCode())
	}
	if resp.IsError() {
		return nil, errors.Errorf("identity lookup failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	for _, l := range body.Data {
		result[l.ID] = l
	}
	return result, nil
}
