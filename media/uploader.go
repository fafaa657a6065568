package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/zhuxian89/dingtalk-moltbot-connector/logger"
)

const (
	defaultUploadBase = "https://oapi.dingtalk.com"
	uploadPath        = "/media/upload"

	defaultUploadTimeout = 60 * time.Second
)

// HTTPUploader uploads files to the DingTalk media endpoint via multipart POST.
type HTTPUploader struct {
	baseURL string
	client  *http.Client
}

// UploaderOption configures an HTTPUploader.
type UploaderOption func(*HTTPUploader)

// WithUploadBaseURL sets a custom upload base URL (for testing or proxies).
func WithUploadBaseURL(url string) UploaderOption {
	return func(u *HTTPUploader) {
		u.baseURL = url
	}
}

// WithUploadClient sets a custom HTTP client.
func WithUploadClient(client *http.Client) UploaderOption {
	return func(u *HTTPUploader) {
		u.client = client
	}
}

// NewHTTPUploader creates a media uploader.
func NewHTTPUploader(opts ...UploaderOption) *HTTPUploader {
	u := &HTTPUploader{
		baseURL: defaultUploadBase,
		client:  &http.Client{Timeout: defaultUploadTimeout},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload sends path as an image upload and returns the backend's media id.
func (u *HTTPUploader) Upload(ctx context.Context, path, token string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := fmt.Sprintf("%s%s?access_token=%s&type=image", u.baseURL, uploadPath, token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}

	logger.APIResponse("DingTalkMedia", resp.StatusCode, string(respBody), nil)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var uploadResp struct {
		MediaID string `json:"media_id"`
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(respBody, &uploadResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal upload response: %w", err)
	}
	if uploadResp.ErrCode != 0 {
		return "", fmt.Errorf("upload rejected: %d %s", uploadResp.ErrCode, uploadResp.ErrMsg)
	}
	if uploadResp.MediaID == "" {
		return "", fmt.Errorf("upload response missing media_id: %s", string(respBody))
	}
	return uploadResp.MediaID, nil
}
