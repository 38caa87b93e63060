// Package asr is a client for a remote whisper-asr-webservice instance.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pendant/internal/language"
	"pendant/internal/services"
	"pendant/internal/transcript"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 5 * time.Minute

// Client posts audio to the webservice's /asr endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	language   string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithLanguage pins the spoken language instead of auto-detection.
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// New creates a client for the whisper-asr-webservice at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the provider in logs.
func (c *Client) Name() string { return "remote" }

// Transcribe uploads audioPath and returns the transcription with segments.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (transcript.Transcript, error) {
	var result transcript.Transcript

	file, err := os.Open(audioPath)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "transcription", "remote", "open audio file", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio_file", filepath.Base(audioPath))
	if err != nil {
		return result, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return result, services.Wrap(services.ErrTransient, "transcription", "remote", "copy audio data", err)
	}
	if err := writer.Close(); err != nil {
		return result, fmt.Errorf("close multipart writer: %w", err)
	}

	reqURL, err := c.buildURL()
	if err != nil {
		return result, services.Wrap(services.ErrConfiguration, "transcription", "remote", "build URL", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return result, services.Wrap(services.ErrConfiguration, "transcription", "remote", "create request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout {
			return result, services.Wrap(services.ErrTimeout, "transcription", "remote", "request", apiErr)
		}
		return result, services.Wrap(services.ErrUnavailable, "transcription", "remote", "request", apiErr)
	}

	return parseResponse(resp.Body)
}

func (c *Client) buildURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("api url %q must include scheme and host", c.baseURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/asr"
	}
	q := u.Query()
	q.Set("output", "json")
	q.Set("task", "transcribe")
	if lang := language.ToISO2(c.language); lang != "" {
		q.Set("language", lang)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// APIError is a non-200 response from the webservice.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API error: status %d", e.Status)
	}
	return fmt.Sprintf("API error: status %d: %s", e.Status, e.Body)
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "transcription", "remote", "send request", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "transcription", "remote", "send request", err)
	}
	return services.Wrap(services.ErrUnavailable, "transcription", "remote", "send request", err)
}

type response struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func parseResponse(body io.Reader) (transcript.Transcript, error) {
	var out transcript.Transcript
	data, err := io.ReadAll(body)
	if err != nil {
		return out, services.Wrap(services.ErrUnavailable, "transcription", "remote", "read response", err)
	}
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return out, services.Wrap(services.ErrUnavailable, "transcription", "remote", "parse JSON response", err)
	}
	out.Language = resp.Language
	for _, seg := range resp.Segments {
		out.Segments = append(out.Segments, transcript.Segment{
			Start: transcript.Seconds(seg.Start),
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	out.Text = strings.TrimSpace(resp.Text)
	if out.Text == "" {
		out.Text = transcript.JoinText(out.Segments)
	}
	return out, nil
}
