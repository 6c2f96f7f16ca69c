package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"retail-forecast-api/pkg/models"
)

// Operation is a read-only call of the forecast API.
type Operation int

const (
	OpRoot Operation = iota
	OpHealth
	OpSummary
	OpSample
)

func (o Operation) String() string {
	switch o {
	case OpRoot:
		return "root"
	case OpHealth:
		return "health"
	case OpSummary:
		return "summary"
	case OpSample:
		return "sample"
	}
	return "unknown"
}

// ParseOperation maps a name to an Operation.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "root":
		return OpRoot, nil
	case "health":
		return OpHealth, nil
	case "summary":
		return OpSummary, nil
	case "sample":
		return OpSample, nil
	}
	return 0, fmt.Errorf("unknown operation: %q", s)
}

// SampleParams filters /data/sample. Zero values are not sent.
type SampleParams struct {
	Limit     int
	StartDate string
	EndDate   string
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Kind       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Kind, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
}

// Client is a small HTTP client for the forecast API.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client; baseURL may carry a trailing slash.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch runs a read-only operation and returns its typed response
// (*models.RootResponse, *models.HealthResponse, *models.SummaryResponse or
// *models.SampleResponse).
func (c *Client) Fetch(ctx context.Context, op Operation, params SampleParams) (interface{}, error) {
	switch op {
	case OpRoot:
		return c.Root(ctx)
	case OpHealth:
		return c.Health(ctx)
	case OpSummary:
		return c.Summary(ctx)
	case OpSample:
		return c.Sample(ctx, params)
	}
	return nil, fmt.Errorf("unsupported operation: %v", op)
}

func (c *Client) Root(ctx context.Context) (*models.RootResponse, error) {
	var out models.RootResponse
	if err := c.do(ctx, http.MethodGet, "/", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	var out models.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Summary(ctx context.Context) (*models.SummaryResponse, error) {
	var out models.SummaryResponse
	if err := c.do(ctx, http.MethodGet, "/data/summary", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Sample(ctx context.Context, params SampleParams) (*models.SampleResponse, error) {
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.StartDate != "" {
		q.Set("start_date", params.StartDate)
	}
	if params.EndDate != "" {
		q.Set("end_date", params.EndDate)
	}
	var out models.SampleResponse
	if err := c.do(ctx, http.MethodGet, "/data/sample", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Predict(ctx context.Context, req *models.PredictionRequest) (*models.PredictionResponse, error) {
	var out models.PredictionResponse
	if err := c.do(ctx, http.MethodPost, "/predict", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Evaluate(ctx context.Context, req *models.PredictionRequest) (*models.EvaluationResponse, error) {
	var out models.EvaluationResponse
	if err := c.do(ctx, http.MethodPost, "/evaluate", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(data))}
		var e models.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Kind = e.Error
			apiErr.Detail = e.Detail
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// MergePredictions attaches a "prediction" field to copies of records. When
// the lengths differ the predictions are returned on their own, one record
// each, since they cannot be re-associated with source rows.
func MergePredictions(records []models.Record, predictions []float64) []models.Record {
	out := make([]models.Record, 0, len(predictions))
	if len(records) > 0 && len(records) == len(predictions) {
		for i, rec := range records {
			merged := make(models.Record, len(rec)+1)
			for k, v := range rec {
				merged[k] = v
			}
			merged["prediction"] = predictions[i]
			out = append(out, merged)
		}
		return out
	}
	for _, p := range predictions {
		out = append(out, models.Record{"prediction": p})
	}
	return out
}
