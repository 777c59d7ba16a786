package redemptions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/civium/rewards-core/internal/model"
	"github.com/civium/rewards-core/internal/serviceerrs"
)

const clientTimeout = 10 * time.Second

// DisburseRequest is what the provider receives. The idempotency key
// makes resubmission after a timeout safe on the provider side too.
type DisburseRequest struct {
	Destination    string `json:"destination"`
	ProductType    string `json:"product_type"`
	IdempotencyKey string `json:"idempotency_key"`
	Amount         int64  `json:"amount"`
}

type DisburseResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Message   string `json:"message,omitempty"`
}

const (
	ProviderStatusCompleted = "completed"
	ProviderStatusFailed    = "failed"
	ProviderStatusPending   = "pending"
)

type Client struct {
	httpClient http.Client
	addr       string
}

func NewClient(addr string) *Client {
	return &Client{
		httpClient: http.Client{Timeout: clientTimeout},
		addr:       addr,
	}
}

func (c *Client) Submit(ctx context.Context, req DisburseRequest,
) (DisburseResponse, error) {
	u := url.URL{
		Scheme: "http",
		Host:   c.addr,
		Path:   "/api/disbursements",
	}

	body, err := json.Marshal(req)
	if err != nil {
		return DisburseResponse{}, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx,
		http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return DisburseResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set(model.HeaderContentType, "application/json")

	return c.do(httpReq)
}

func (c *Client) Status(ctx context.Context, idempotencyKey string,
) (DisburseResponse, error) {
	u := url.URL{
		Scheme: "http",
		Host:   c.addr,
		Path:   fmt.Sprintf("/api/disbursements/%s", idempotencyKey),
	}

	httpReq, err := http.NewRequestWithContext(ctx,
		http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return DisburseResponse{}, fmt.Errorf("failed to build request: %w", err)
	}

	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) (DisburseResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DisburseResponse{}, fmt.Errorf("provider request error: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	defer func() {
		_ = resp.Body.Close()
	}()
	if err != nil {
		return DisburseResponse{}, fmt.Errorf("provider read body error: %w", err)
	}

	data, err := c.handleResponse(resp, body)
	if err == nil ||
		errors.Is(err, &serviceerrs.TooManyRequestsError{}) ||
		errors.Is(err, &serviceerrs.ProviderRejectedError{}) {
		return data, err
	}

	return data, fmt.Errorf("provider request failed: %w", err)
}

func (c *Client) handleResponse(resp *http.Response, body []byte,
) (DisburseResponse, error) {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if ct := resp.Header.Get(model.HeaderContentType); ct != "application/json" {
			return DisburseResponse{},
				fmt.Errorf("unexpected content type %s", ct)
		}
		data := DisburseResponse{}
		if err := json.Unmarshal(body, &data); err != nil {
			return DisburseResponse{},
				fmt.Errorf("provider decoding error: %w", err)
		}
		return data, nil
	case http.StatusNotFound:
		return DisburseResponse{},
			errors.New("no disbursement for this key")
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return DisburseResponse{},
			&serviceerrs.ProviderRejectedError{Message: string(body)}
	case http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		ra, err := strconv.Atoi(retryAfter)
		if err != nil {
			return DisburseResponse{},
				fmt.Errorf("failed to parse Retry-After: %w", err)
		}
		return DisburseResponse{},
			&serviceerrs.TooManyRequestsError{
				RetryAfter: time.Duration(ra) * time.Second,
			}
	}

	return DisburseResponse{},
		fmt.Errorf("unexpected status: %d, body: %s", resp.StatusCode, string(body))
}
