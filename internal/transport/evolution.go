package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"docbot/internal/logging"
	"docbot/internal/services"
)

// EvolutionClient sends messages through an Evolution API instance.
type EvolutionClient struct {
	baseURL  string
	apiKey   string
	instance string
	client   *http.Client
	logger   *slog.Logger
}

// NewEvolutionClient constructs a client for the given instance.
func NewEvolutionClient(baseURL, apiKey, instance string, client *http.Client, logger *slog.Logger) *EvolutionClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &EvolutionClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		instance: instance,
		client:   client,
		logger:   logging.NewComponentLogger(logger, "transport"),
	}
}

type textRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type mediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	MimeType  string `json:"mimetype"`
	Caption   string `json:"caption,omitempty"`
	Media     string `json:"media"`
	FileName  string `json:"fileName"`
}

type sendResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
}

func (c *EvolutionClient) SendText(ctx context.Context, to, text string) error {
	_, err := c.post(ctx, "/message/sendText/", textRequest{Number: to, Text: text})
	return err
}

func (c *EvolutionClient) SendMedia(ctx context.Context, to, path, caption, filename string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read media %s: %w", filepath.Base(path), err)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	resp, err := c.post(ctx, "/message/sendMedia/", mediaRequest{
		Number:    to,
		MediaType: "document",
		MimeType:  mimeType,
		Caption:   caption,
		Media:     base64.StdEncoding.EncodeToString(data),
		FileName:  filename,
	})
	if err != nil {
		return "", err
	}
	if resp.Key.ID == "" {
		return "", &services.ApiError{Message: "Failed to send media - invalid response format", Endpoint: "/message/sendMedia/", StatusCode: http.StatusOK}
	}
	logging.WithContext(ctx, c.logger).Info("media sent",
		logging.String("file", filename),
		logging.String("sent_id", resp.Key.ID),
	)
	return resp.Key.ID, nil
}

func (c *EvolutionClient) post(ctx context.Context, endpoint string, body any) (sendResponse, error) {
	var out sendResponse
	payload, err := json.Marshal(body)
	if err != nil {
		return out, fmt.Errorf("encode request: %w", err)
	}
	target := c.baseURL + endpoint + url.PathEscape(c.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return out, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return out, &services.ApiError{Message: "request to messaging gateway failed", Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return out, &services.ApiError{
			Message:    "messaging gateway returned " + strings.TrimSpace(string(truncate(raw, 512))),
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
		}
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
