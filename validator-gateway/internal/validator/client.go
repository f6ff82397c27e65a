package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/models"
)

var (
	// ErrUnreachable covers transport failures and timeouts.
	ErrUnreachable = errors.New("validator unreachable")
	// ErrMalformed covers bodies that are not a JSON array of numbers.
	ErrMalformed = errors.New("validator response malformed")
)

const maxResponseBytes = 1 << 20

// Response is the parsed validator answer.
type Response struct {
	Scores []float64
	Status int
}

// Client scores one image against the validator proxy.
type Client interface {
	Score(ctx context.Context, req models.ForwardRequest) (Response, error)
}

type HTTPClientConfig struct {
	BaseURL    string
	Path       string
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

type HTTPClient struct {
	baseURL string
	path    string
	client  *http.Client
	timeout time.Duration
	retries int
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("validator base url required")
	}
	path := cfg.Path
	if path == "" {
		path = "/validator_proxy"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		path:    path,
		client:  client,
		timeout: timeout,
		retries: retries,
	}, nil
}

// URL is the full validator endpoint.
func (c *HTTPClient) URL() string {
	return c.baseURL + c.path
}

// Score posts the payload and parses the score list. Only transport failures are
// retried; a response that arrived but cannot be parsed fails immediately.
func (c *HTTPClient) Score(ctx context.Context, req models.ForwardRequest) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("validator marshal request: %w", err)
	}

	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
		}
		resp, err := c.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, ErrUnreachable) {
			return Response{}, err
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	return Response{}, lastErr
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.URL(), bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("validator build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}
	scores, err := DecodeScores(raw)
	if err != nil {
		return Response{}, err
	}
	return Response{Scores: scores, Status: resp.StatusCode}, nil
}

// DecodeScores parses a JSON array and coerces every entry to float64.
func DecodeScores(raw []byte) ([]float64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var items []interface{}
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: expected JSON array: %v", ErrMalformed, err)
	}
	if items == nil {
		return nil, fmt.Errorf("%w: expected JSON array, got null", ErrMalformed)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after JSON array", ErrMalformed)
	}
	scores := make([]float64, len(items))
	for i, item := range items {
		f, err := coerceFloat(item)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformed, i, err)
		}
		scores[i] = f
	}
	return scores, nil
}

// coerceFloat rejects NaN and infinities; they cannot be compared or encoded.
func coerceFloat(v interface{}) (float64, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", v)
	}
	return f, nil
}

func toFloat(v interface{}) (float64, error) {
	switch vv := v.(type) {
	case json.Number:
		return vv.Float64()
	case bool:
		if vv {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(vv), 64)
	case nil:
		return 0, fmt.Errorf("null is not a number")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
