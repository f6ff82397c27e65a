package validator_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/models"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/validator"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func newClient(t *testing.T, retries int, rt roundTripFunc) *validator.HTTPClient {
	t.Helper()
	c, err := validator.NewHTTPClient(validator.HTTPClientConfig{
		BaseURL:    "http://validator/",
		Timeout:    time.Second,
		Retries:    retries,
		HTTPClient: &http.Client{Transport: rt},
	})
	require.NoError(t, err)
	return c
}

func TestScoreSendsPayload(t *testing.T) {
	c := newClient(t, 0, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/validator_proxy", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload models.ForwardRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "aW1hZ2U=", payload.Image)
		assert.Equal(t, "cHVia2V5", payload.Authorization)
		return jsonResponse(http.StatusOK, `[0.9, 0.2, 0.7]`), nil
	})

	resp, err := c.Score(context.Background(), models.ForwardRequest{Image: "aW1hZ2U=", Authorization: "cHVia2V5"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []float64{0.9, 0.2, 0.7}, resp.Scores)
	assert.Equal(t, "http://validator/validator_proxy", c.URL())
}

func TestScoreForwardsUpstreamStatus(t *testing.T) {
	c := newClient(t, 0, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusAccepted, `[1, 0]`), nil
	})
	resp, err := c.Score(context.Background(), models.ForwardRequest{Image: "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Status)
}

func TestScoreMalformedBodies(t *testing.T) {
	bodies := []string{
		`{"error":"boom"}`,
		`["high", 0.2]`,
		`[0.1, null]`,
		`[[0.1]]`,
		`null`,
		`not json`,
		`["NaN", 0.9]`,
		`["Inf", 0.9]`,
		`[0.9, "-Infinity"]`,
		`[0.9] trailing-junk`,
		`[0.9][0.1]`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			var calls int32
			c := newClient(t, 2, func(r *http.Request) (*http.Response, error) {
				atomic.AddInt32(&calls, 1)
				return jsonResponse(http.StatusOK, body), nil
			})
			_, err := c.Score(context.Background(), models.ForwardRequest{Image: "x"})
			assert.ErrorIs(t, err, validator.ErrMalformed)
			assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "malformed responses are not retried")
		})
	}
}

func TestScoreRetriesTransportErrors(t *testing.T) {
	var calls int32
	c := newClient(t, 2, func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("connection refused")
		}
		return jsonResponse(http.StatusOK, `[0.6]`), nil
	})
	resp, err := c.Score(context.Background(), models.ForwardRequest{Image: "x"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.6}, resp.Scores)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestScoreUnreachable(t *testing.T) {
	c := newClient(t, 0, func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: no route to host")
	})
	_, err := c.Score(context.Background(), models.ForwardRequest{Image: "x"})
	assert.ErrorIs(t, err, validator.ErrUnreachable)
}

func TestScoreTimesOut(t *testing.T) {
	c, err := validator.NewHTTPClient(validator.HTTPClientConfig{
		BaseURL: "http://validator",
		Timeout: 50 * time.Millisecond,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			<-r.Context().Done()
			return nil, r.Context().Err()
		})},
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Score(context.Background(), models.ForwardRequest{Image: "x"})
	assert.ErrorIs(t, err, validator.ErrUnreachable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDecodeScoresCoercion(t *testing.T) {
	scores, err := validator.DecodeScores([]byte(`[1, 0.25, "0.75", true, false, " 3e-1 "]`))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.25, 0.75, 1, 0, 0.3}, scores)

	scores, err = validator.DecodeScores([]byte("[0.5]\n  "))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, scores)

	scores, err = validator.DecodeScores([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	_, err := validator.NewHTTPClient(validator.HTTPClientConfig{})
	assert.Error(t, err)
}
