package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultDriveBaseURL = "https://www.googleapis.com/drive/v3/files"
	defaultDriveUpload  = "https://www.googleapis.com/upload/drive/v3/files"
	googleDriveProvider = "google_drive"
)

// DriveClientConfig configures a Google Drive files client.
type DriveClientConfig struct {
	BaseURL    string
	UploadURL  string
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// DriveClient serves Google Drive documents through the Drive v3 files API.
type DriveClient struct {
	baseURL    string
	uploadURL  string
	tokens     TokenSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDriveClient constructs a Drive files client with sane defaults.
func NewDriveClient(cfg DriveClientConfig) (*DriveClient, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultDriveBaseURL
	}
	uploadURL := strings.TrimRight(strings.TrimSpace(cfg.UploadURL), "/")
	if uploadURL == "" {
		uploadURL = defaultDriveUpload
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DriveClient{
		baseURL:    baseURL,
		uploadURL:  uploadURL,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Name returns the provider tag this client serves.
func (c *DriveClient) Name() string {
	return googleDriveProvider
}

// FetchContent downloads the file media and its modifiedTime.
func (c *DriveClient) FetchContent(ctx context.Context, companyID, fileID string) (Content, error) {
	token, err := c.tokens.Token(ctx, companyID)
	if err != nil || token == "" {
		return Content{}, ErrNoCredential
	}

	body, err := httpGet(ctx, c.httpClient, c.baseURL+"/"+fileID+"?alt=media", token, defaultFetchTimeout)
	if err != nil {
		return Content{}, err
	}

	lastModified := time.Now().UTC()
	meta, err := httpGetJSON(ctx, c.httpClient, c.baseURL+"/"+fileID+"?fields=modifiedTime", token, defaultMetadataTimeout)
	if err == nil {
		if raw, ok := meta["modifiedTime"].(string); ok {
			if parsed, parseErr := time.Parse(time.RFC3339, raw); parseErr == nil {
				lastModified = parsed
			}
		}
	} else {
		c.logger.Debug("drive file metadata fetch failed", zap.String("file_id", fileID), zap.Error(err))
	}

	return Content{Body: body, LastModified: lastModified}, nil
}

// UploadContent replaces the file media via uploadType=media.
func (c *DriveClient) UploadContent(ctx context.Context, companyID, fileID, body string) error {
	token, err := c.tokens.Token(ctx, companyID)
	if err != nil || token == "" {
		return ErrNoCredential
	}
	return httpPut(ctx, c.httpClient, c.uploadURL+"/"+fileID+"?uploadType=media", token, body, defaultUploadTimeout)
}

// ExtractFileID reads the flat Drive push-notification payload: { "fileId": "..." }.
func (c *DriveClient) ExtractFileID(payload map[string]any) string {
	fileID, _ := payload["fileId"].(string)
	return fileID
}
