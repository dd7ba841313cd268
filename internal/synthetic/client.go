package synthetic

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

	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/pkg/logger"
)

// ErrRejected is returned when the server does not accept an analysis.
var ErrRejected = errors.New("analysis rejected")

// Client posts generated data to a running abbayes server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with a request timeout. Sampling runs inside
// the request, so the timeout must cover a whole analysis.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	Model   string         `json:"model"`
	Records []model.Record `json:"records"`
}

// Submit runs an analysis of records on the server and returns it.
func (c *Client) Submit(ctx context.Context, modelName string, records []model.Record, opts ...Option) (*model.Analysis, error) {
	o := options{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	body, err := json.Marshal(submitRequest{Model: modelName, Records: records})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	url := c.baseURL + "/v1/analyses"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: %s: %s", ErrRejected, resp.Status, bytes.TrimSpace(data))
	}

	var a model.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	o.logger.Info(ctx, "analysis submitted",
		logger.String("id", a.ID),
		logger.Int("records", len(records)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return &a, nil
}
