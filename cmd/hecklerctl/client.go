package main

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
	"strings"
	"time"

	"github.com/hecklerbot/heckler/pkg/api"
)

// Client talks to the heckler admin HTTP API.
type Client struct {
	base     string
	user     string
	password string
	http     *http.Client
}

// NewClient returns a Client for the admin API at base, authenticating
// every request with the given HTTP Basic credentials.
func NewClient(base, user, password string) *Client {
	return &Client{
		base:     strings.TrimRight(base, "/"),
		user:     user,
		password: password,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// ListClips returns every clip in the catalog with its phrases.
func (c *Client) ListClips(ctx context.Context) (api.Clips, error) {
	var clips api.Clips
	err := c.do(ctx, http.MethodGet, "/v1/clips/", nil, "", &clips)
	return clips, err
}

// GetClip returns a single clip by ID.
func (c *Client) GetClip(ctx context.Context, id string) (api.Clip, error) {
	var clip api.Clip
	err := c.do(ctx, http.MethodGet, "/v1/clips/"+id+"/", nil, "", &clip)
	return clip, err
}

// AddClip uploads the audio file at path as a new clip.
func (c *Client) AddClip(ctx context.Context, path string, upload api.ClipUpload) (api.Clip, error) {
	var clip api.Clip

	f, err := os.Open(path)
	if err != nil {
		return clip, fmt.Errorf("open clip file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	meta, err := json.Marshal(upload)
	if err != nil {
		return clip, fmt.Errorf("encode clip metadata: %w", err)
	}
	if err := mw.WriteField("clip_metadata", string(meta)); err != nil {
		return clip, fmt.Errorf("write metadata field: %w", err)
	}
	fw, err := mw.CreateFormFile("clip", filepath.Base(path))
	if err != nil {
		return clip, fmt.Errorf("create file field: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return clip, fmt.Errorf("copy clip file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return clip, fmt.Errorf("finish multipart body: %w", err)
	}

	err = c.do(ctx, http.MethodPost, "/v1/clips/", &body, mw.FormDataContentType(), &clip)
	return clip, err
}

// EditClip updates a clip's description and replaces its phrase set.
func (c *Client) EditClip(ctx context.Context, id string, upload api.ClipUpload) (api.ClipUpdated, error) {
	var updated api.ClipUpdated
	body, err := jsonBody(upload)
	if err != nil {
		return updated, err
	}
	err = c.do(ctx, http.MethodPut, "/v1/clips/"+id+"/", body, "application/json", &updated)
	return updated, err
}

// RemoveClip deletes a clip, its phrases, and its audio file.
func (c *Client) RemoveClip(ctx context.Context, id string) (api.Clip, error) {
	var clip api.Clip
	err := c.do(ctx, http.MethodDelete, "/v1/clips/"+id+"/", nil, "", &clip)
	return clip, err
}

// ListPhrases returns every phrase across all clips.
func (c *Client) ListPhrases(ctx context.Context) (api.Phrases, error) {
	var phrases api.Phrases
	err := c.do(ctx, http.MethodGet, "/v1/phrases/", nil, "", &phrases)
	return phrases, err
}

// AddPhrase attaches a trigger phrase to a clip.
func (c *Client) AddPhrase(ctx context.Context, clipID, text string) (api.Phrase, error) {
	var phrase api.Phrase
	body, err := jsonBody(api.CreatePhrase{Clip: clipID, Phrase: text})
	if err != nil {
		return phrase, err
	}
	err = c.do(ctx, http.MethodPost, "/v1/phrases/", body, "application/json", &phrase)
	return phrase, err
}

// RemovePhrase detaches a phrase by ID.
func (c *Client) RemovePhrase(ctx context.Context, id string) (api.Phrase, error) {
	var phrase api.Phrase
	err := c.do(ctx, http.MethodDelete, "/v1/phrases/"+id+"/", nil, "", &phrase)
	return phrase, err
}

// do performs one API request and decodes the JSON response into out.
// Non-2xx responses are turned into errors carrying the server's error
// message.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody api.ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, errBody.Error, resp.Status)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(data), nil
}
