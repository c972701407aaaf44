package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultGraphBaseURL = "https://graph.microsoft.com/v1.0/me/drive/items"

	defaultFetchTimeout    = 15 * time.Second
	defaultMetadataTimeout = 10 * time.Second
	defaultUploadTimeout   = 30 * time.Second
)

// GraphClientConfig configures a Microsoft Graph drive-item client.
type GraphClientConfig struct {
	// ProviderName distinguishes OneDrive from SharePoint; both ride the
	// same Graph drive-item surface and webhook envelope.
	ProviderName string
	BaseURL      string
	Tokens       TokenSource
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// GraphClient serves OneDrive and SharePoint documents through the Microsoft
// Graph drive-item API.
type GraphClient struct {
	name       string
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGraphClient constructs a Graph drive-item client with sane defaults.
func NewGraphClient(cfg GraphClientConfig) (*GraphClient, error) {
	name := strings.TrimSpace(cfg.ProviderName)
	if name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GraphClient{
		name:       name,
		baseURL:    baseURL,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Name returns the provider tag this client serves.
func (c *GraphClient) Name() string {
	return c.name
}

// FetchContent downloads the drive item body and its last-modified timestamp.
func (c *GraphClient) FetchContent(ctx context.Context, companyID, fileID string) (Content, error) {
	token, err := c.tokens.Token(ctx, companyID)
	if err != nil || token == "" {
		return Content{}, ErrNoCredential
	}

	body, err := httpGet(ctx, c.httpClient, c.baseURL+"/"+fileID+"/content", token, defaultFetchTimeout)
	if err != nil {
		return Content{}, err
	}

	lastModified := time.Now().UTC()
	meta, err := httpGetJSON(ctx, c.httpClient, c.baseURL+"/"+fileID, token, defaultMetadataTimeout)
	if err == nil {
		if raw, ok := meta["lastModifiedDateTime"].(string); ok {
			if parsed, parseErr := time.Parse(time.RFC3339, raw); parseErr == nil {
				lastModified = parsed
			}
		}
	} else {
		c.logger.Debug("drive item metadata fetch failed", zap.String("file_id", fileID), zap.Error(err))
	}

	return Content{Body: body, LastModified: lastModified}, nil
}

// UploadContent replaces the drive item body via PUT .../content.
func (c *GraphClient) UploadContent(ctx context.Context, companyID, fileID, body string) error {
	token, err := c.tokens.Token(ctx, companyID)
	if err != nil || token == "" {
		return ErrNoCredential
	}
	return httpPut(ctx, c.httpClient, c.baseURL+"/"+fileID+"/content", token, body, defaultUploadTimeout)
}

// ExtractFileID reads the Graph change-notification envelope:
// { "value": [ { "resourceData": { "id": "..." } } ] }.
func (c *GraphClient) ExtractFileID(payload map[string]any) string {
	notifications, ok := payload["value"].([]any)
	if !ok || len(notifications) == 0 {
		return ""
	}
	first, ok := notifications[0].(map[string]any)
	if !ok {
		return ""
	}
	resourceData, ok := first["resourceData"].(map[string]any)
	if !ok {
		return ""
	}
	fileID, _ := resourceData["id"].(string)
	return fileID
}

func httpGet(ctx context.Context, client *http.Client, url, token string, timeout time.Duration) (string, error) {
	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	response, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("content request returned status %d", response.StatusCode)
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func httpGetJSON(ctx context.Context, client *http.Client, url, token string, timeout time.Duration) (map[string]any, error) {
	raw, err := httpGet(ctx, client, url, token, timeout)
	if err != nil {
		return nil, err
	}
	return decodeJSONObject(raw)
}

func httpPut(ctx context.Context, client *http.Client, url, token, body string, timeout time.Duration) error {
	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPut, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "text/plain")

	response, err := client.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("upload returned status %d", response.StatusCode)
	}
	return nil
}
