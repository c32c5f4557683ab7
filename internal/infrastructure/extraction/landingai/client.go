package landingai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/surgiscan/docintake/internal/core/domain"
	"github.com/surgiscan/docintake/internal/infrastructure/resilience"
)

// Client talks to the LandingAI document analysis API. All calls go through
// the shared resilience executor so transient upstream failures are retried
// and sustained ones trip the breaker.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
	observe    func(operation string, err error)
}

func New(baseURL, apiKey string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// OnCall registers a hook fired once per detect/extract operation with its
// final error, after retries have run their course.
func (c *Client) OnCall(fn func(operation string, err error)) {
	c.observe = fn
}

type detectResponse struct {
	DocumentTypes []string `json:"document_types"`
	PrimaryType   string   `json:"primary_type"`
	Confidence    float64  `json:"confidence"`
}

func (c *Client) Detect(ctx context.Context, payload []byte, filename string) (domain.Detection, error) {
	var response detectResponse
	call := func(ctx context.Context) error {
		return c.postDocument(ctx, "/v1/detect", payload, filename, nil, &response, "detect")
	}
	if err := c.execute(ctx, "landingai.detect", call); err != nil {
		return domain.Detection{}, wrapUpstreamError("detect document types", err)
	}

	types := make([]domain.DocumentType, 0, len(response.DocumentTypes))
	for _, raw := range response.DocumentTypes {
		docType := domain.DocumentType(strings.TrimSpace(raw))
		if docType.Supported() {
			types = append(types, docType)
		}
	}
	return domain.Detection{
		Types:      types,
		Primary:    domain.DocumentType(response.PrimaryType),
		Confidence: response.Confidence,
	}, nil
}

type extractResponse struct {
	Fields map[string]any `json:"fields"`
}

func (c *Client) Extract(ctx context.Context, payload []byte, filename string, docType domain.DocumentType) (map[string]any, error) {
	fields := map[string]string{"document_type": string(docType)}

	var response extractResponse
	call := func(ctx context.Context) error {
		return c.postDocument(ctx, "/v1/extract", payload, filename, fields, &response, "extract")
	}
	operation := fmt.Sprintf("landingai.extract.%s", docType)
	if err := c.execute(ctx, operation, call); err != nil {
		return nil, wrapUpstreamError(fmt.Sprintf("extract %s", docType), err)
	}
	return response.Fields, nil
}

// Probe reports whether the upstream API answers at all. Used by the health
// endpoint; never retried so a degraded upstream shows up immediately.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrUpstreamUnavailable, "probe extraction api", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.WrapError(domain.ErrUpstreamUnavailable, "probe extraction api",
			fmt.Errorf("status %s", resp.Status))
	}
	return nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	var err error
	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, operation, call, classifyUpstreamError)
	}
	if c.observe != nil {
		c.observe(operation, err)
	}
	return err
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
