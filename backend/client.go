// Package backend is the HTTP client for the document-processing service
// (OCR, retrieval and answer generation).
package backend

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

	"civicgpt/tax-advisor/types"

	"github.com/sirupsen/logrus"
)

// ErrDocumentsNotProcessed is returned by AskQuestion when the backend has no
// processed documents for the session yet.
var ErrDocumentsNotProcessed = errors.New("please process documents first before asking questions")

const notProcessedPhrase = "process documents first"

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %s", e.Status)
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Entry
}

func NewClient(baseURL string, timeout time.Duration, log *logrus.Entry) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Health calls GET /health. Any 2xx answer is healthy; the decoded body is
// informational.
func (c *Client) Health(ctx context.Context) (types.HealthResponse, error) {
	var health types.HealthResponse

	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return health, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return health, readHTTPError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil && !errors.Is(err, io.EOF) {
		c.log.Debug("Undecodable health body: ", err)
	}
	return health, nil
}

// ProcessDocuments calls POST /process-documents. A non-2xx answer is an
// *HTTPError; a 2xx answer is returned as-is for the caller to judge.
func (c *Client) ProcessDocuments(ctx context.Context, req types.ProcessRequest) (types.ProcessResult, error) {
	var result types.ProcessResult

	resp, err := c.do(ctx, http.MethodPost, "/process-documents", req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, readHTTPError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(&result.Raw); err != nil {
		return result, fmt.Errorf("failed to decode process response: %w", err)
	}
	result.Status, _ = result.Raw["status"].(string)
	result.Error, _ = result.Raw["error"].(string)
	return result, nil
}

// AskQuestion calls POST /ask-question. An error body mentioning that
// documents must be processed first maps to ErrDocumentsNotProcessed.
func (c *Client) AskQuestion(ctx context.Context, req types.AskRequest) (types.AskResponse, error) {
	var answer types.AskResponse

	resp, err := c.do(ctx, http.MethodPost, "/ask-question", req)
	if err != nil {
		return answer, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := readHTTPError(resp)
		if strings.Contains(strings.ToLower(httpErr.Message), notProcessedPhrase) {
			return answer, fmt.Errorf("%w: %s", ErrDocumentsNotProcessed, httpErr.Message)
		}
		return answer, httpErr
	}

	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return answer, fmt.Errorf("failed to decode answer: %w", err)
	}
	return answer, nil
}

// ResetVectors clears the backend's vector store.
func (c *Client) ResetVectors(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/reset-vectors", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readHTTPError(resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	c.log.WithFields(logrus.Fields{
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Backend call")
	return resp, nil
}

func readHTTPError(resp *http.Response) *HTTPError {
	httpErr := &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body types.ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		httpErr.Message = body.Error
	} else {
		httpErr.Message = strings.TrimSpace(string(raw))
	}
	return httpErr
}
