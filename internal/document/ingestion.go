package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/loansight/assistant/internal/observability"
	"github.com/loansight/assistant/internal/resilience"
)

// Extraction is the ingestion backend's answer for one file
type Extraction struct {
	Content  string  `json:"content"`
	Accuracy float64 `json:"accuracy"`
}

// Extractor turns an uploaded file into text
type Extractor interface {
	Extract(ctx context.Context, name, contentType string, data []byte) (*Extraction, error)
}

// IngestionClient talks to the document ingestion backend over HTTP
type IngestionClient struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    *resilience.RetryConfig
}

// NewIngestionClient creates a client for the backend at baseURL
func NewIngestionClient(baseURL string, timeout time.Duration, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig) *IngestionClient {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("ingestion", 5, 30*time.Second)
	}
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
	})

	return &IngestionClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		circuitBreaker: breaker,
		retryConfig:    retry,
	}
}

// Extract uploads a file to POST /upload and returns the extracted text
func (c *IngestionClient) Extract(ctx context.Context, name, contentType string, data []byte) (*Extraction, error) {
	started := time.Now()
	logger := observability.WithComponent("ingestion")

	var result *Extraction
	err := c.circuitBreaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			res, err := c.upload(ctx, name, contentType, data)
			if err != nil {
				logger.Warn().Err(err).Str("file", name).Msg("Upload attempt failed")
				return err
			}
			result = res
			return nil
		}, c.retryConfig, resilience.IsRetryableNetworkError)
	})
	observability.RecordIngestion(started, err)

	if err != nil {
		observability.RecordError("ingestion_failed", "document")
		return nil, fmt.Errorf("failed to ingest %s: %w", name, err)
	}

	logger.Info().
		Str("file", name).
		Int("chars", len(result.Content)).
		Float64("accuracy", result.Accuracy).
		Dur("took", time.Since(started)).
		Msg("Document extracted")
	return result, nil
}

func (c *IngestionClient) upload(ctx context.Context, name, contentType string, data []byte) (*Extraction, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("ingestion backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, resilience.NewRetryableError(err)
		}
		return nil, err
	}

	var out Extraction
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ingestion response: %w", err)
	}
	return &out, nil
}

// HealthCheck reports whether GET /health answers 200
func (c *IngestionClient) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ingestion backend returned status %d", resp.StatusCode)
	}
	return true, nil
}
