package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"modtrack/models"
)

// HTTPPhotoUploader pushes queued photo blobs to the media storage service
// and returns the public URL it assigns. Configured from the environment:
// PHOTO_STORAGE_URL and PHOTO_STORAGE_API_KEY.
type HTTPPhotoUploader struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPPhotoUploader reads the storage endpoint from the environment.
func NewHTTPPhotoUploader() (*HTTPPhotoUploader, error) {
	endpoint := os.Getenv("PHOTO_STORAGE_URL")
	if endpoint == "" {
		return nil, fmt.Errorf("PHOTO_STORAGE_URL not set")
	}
	return &HTTPPhotoUploader{
		endpoint: endpoint,
		apiKey:   os.Getenv("PHOTO_STORAGE_API_KEY"),
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type photoUploadResponse struct {
	URL string `json:"url"`
}

// Upload sends one photo as a multipart form and returns its public URL.
func (u *HTTPPhotoUploader) Upload(ctx context.Context, photo models.QueuedPhoto) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", photo.FileName)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(photo.Data); err != nil {
		return "", fmt.Errorf("write photo data: %w", err)
	}
	if photo.ContentType != "" {
		if err := writer.WriteField("content_type", photo.ContentType); err != nil {
			return "", fmt.Errorf("write content type: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload photo %s: %w", photo.FileName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("photo storage returned %d: %s", resp.StatusCode, string(data))
	}

	var out photoUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("photo storage returned empty URL")
	}
	return out.URL, nil
}
