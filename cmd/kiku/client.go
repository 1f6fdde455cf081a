package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/service"
)

// apiClient talks to a running kiku server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// apiError is a non-2xx response from the server.
type apiError struct {
	Status  int
	Kind    models.Kind
	Message string
}

func (e *apiError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	var body struct {
		Error struct {
			Kind    models.Kind `json:"kind"`
			Message string      `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		return &apiError{Status: status, Kind: body.Error.Kind, Message: body.Error.Message}
	}
	return &apiError{Status: status, Message: strings.TrimSpace(string(data))}
}

func (c *apiClient) Upload(name string, content []byte) (*models.Document, error) {
	var doc models.Document
	path := "/api/v1/documents?filename=" + url.QueryEscape(filepath.Base(name))
	if err := c.do(http.MethodPost, path, bytes.NewReader(content), service.PDFContentType, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *apiClient) Documents() ([]models.Document, error) {
	var out struct {
		Documents []models.Document `json:"documents"`
	}
	if err := c.do(http.MethodGet, "/api/v1/documents", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *apiClient) Document(id string) (*models.Document, error) {
	var doc models.Document
	if err := c.do(http.MethodGet, "/api/v1/documents/"+url.PathEscape(id), nil, "", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *apiClient) Delete(id string) error {
	return c.do(http.MethodDelete, "/api/v1/documents/"+url.PathEscape(id), nil, "", nil)
}

func (c *apiClient) Chat(id, question string) (*models.Answer, error) {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, err
	}
	var answer models.Answer
	path := "/api/v1/documents/" + url.PathEscape(id) + "/chat"
	if err := c.do(http.MethodPost, path, bytes.NewReader(body), "application/json", &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *apiClient) History(id string) ([]*models.ChatTurn, error) {
	var out struct {
		Turns []*models.ChatTurn `json:"turns"`
	}
	if err := c.do(http.MethodGet, "/api/v1/documents/"+url.PathEscape(id)+"/history", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Turns, nil
}

func (c *apiClient) Status() (*service.Status, error) {
	var out struct {
		Status service.Status `json:"status"`
	}
	if err := c.do(http.MethodGet, "/api/v1/status", nil, "", &out); err != nil {
		return nil, err
	}
	return &out.Status, nil
}

func (c *apiClient) WatchDirectories() ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := c.do(http.MethodGet, "/api/v1/watch/directories", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

func (c *apiClient) AddWatchDirectory(path string) error {
	body, err := json.Marshal(map[string]interface{}{"path": path, "sync": true})
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, "/api/v1/watch/directories", bytes.NewReader(body), "application/json", nil)
}

func (c *apiClient) RemoveWatchDirectory(path string) error {
	return c.do(http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(path), nil, "", nil)
}
