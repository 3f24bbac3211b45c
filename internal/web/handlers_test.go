package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hecklerbot/heckler/internal/store"
	"github.com/hecklerbot/heckler/internal/web"
	"github.com/hecklerbot/heckler/pkg/api"
)

const (
	testUser     = "admin"
	testPassword = "hunter2"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.MemStore, string) {
	t.Helper()
	dir := t.TempDir()
	st := store.NewMemStore(dir)
	srv := httptest.NewServer(web.New(st, dir, testUser, testPassword,
		web.WithStatusFunc(func(ctx context.Context) (string, int, error) { return "17.2", 3, nil }),
	).Handler())
	t.Cleanup(srv.Close)
	return srv, st, dir
}

func do(t *testing.T, method, url string, body io.Reader, contentType string, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authed {
		req.SetBasicAuth(testUser, testPassword)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func uploadClip(t *testing.T, srv *httptest.Server, description string, phrases []string, data []byte) api.Clip {
	t.Helper()
	meta, _ := json.Marshal(api.ClipUpload{Description: description, Phrases: phrases})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("clip_metadata", string(meta)); err != nil {
		t.Fatalf("write metadata field: %v", err)
	}
	fw, err := mw.CreateFormFile("clip", "upload.mp3")
	if err != nil {
		t.Fatalf("create file field: %v", err)
	}
	fw.Write(data)
	mw.Close()

	resp := do(t, http.MethodPost, srv.URL+"/v1/clips/", &buf, mw.FormDataContentType(), true)
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload returned %d: %s", resp.StatusCode, body)
	}
	return decode[api.Clip](t, resp)
}

func TestStatus_Unauthenticated(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/status/", nil, "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	st := decode[api.Status](t, resp)
	if st.DBVersion != "17.2" || st.DBConnections != 3 {
		t.Errorf("status body = %+v", st)
	}
}

func TestStatus_BackendDown(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	srv := httptest.NewServer(web.New(store.NewMemStore(dir), dir, testUser, testPassword,
		web.WithStatusFunc(func(ctx context.Context) (string, int, error) {
			return "", 0, store.ErrUnavailable
		}),
	).Handler())
	t.Cleanup(srv.Close)

	resp := do(t, http.MethodGet, srv.URL+"/status/", nil, "", false)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	body := decode[api.ErrorBody](t, resp)
	if body.Error != "store unavailable" {
		t.Errorf("error body = %+v", body)
	}
}

func TestAuth_Required(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/v1/clips/", nil, "", false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated clips request = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/clips/", nil)
	req.SetBasicAuth(testUser, "wrong")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password = %d, want 401", resp2.StatusCode)
	}
}

func TestClips_UploadListGet(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	payload := []byte("audio bytes")
	clip := uploadClip(t, srv, "laugh", []string{"That's Hilarious"}, payload)

	if clip.Description != "laugh" || clip.SpeechDetected != "" {
		t.Errorf("unexpected clip %+v", clip)
	}
	if len(clip.Phrases) != 1 || clip.Phrases[0].Text != "that's hilarious" {
		t.Errorf("phrases should be attached lowercased, got %+v", clip.Phrases)
	}

	resp := do(t, http.MethodGet, srv.URL+"/v1/clips/", nil, "", true)
	clips := decode[api.Clips](t, resp)
	if clips.Items != 1 || len(clips.Clips) != 1 {
		t.Fatalf("list = %+v", clips)
	}

	resp = do(t, http.MethodGet, srv.URL+"/v1/clips/"+clip.ID+"/", nil, "", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get clip = %d", resp.StatusCode)
	}
	got := decode[api.Clip](t, resp)
	if got.ID != clip.ID {
		t.Errorf("got clip %q, want %q", got.ID, clip.ID)
	}
}

func TestClips_AudioDownload(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	payload := []byte("raw opus data")
	clip := uploadClip(t, srv, "laugh", nil, payload)

	resp := do(t, http.MethodGet, srv.URL+"/v1/clips/"+clip.ID+"/audio", nil, "", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audio download = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("content disposition = %q", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, payload) {
		t.Errorf("downloaded bytes differ from upload")
	}
}

func TestClips_UpdateReplacesPhrases(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	clip := uploadClip(t, srv, "laugh", []string{"old phrase"}, []byte("x"))

	body, _ := json.Marshal(api.ClipUpload{Description: "renamed", Phrases: []string{"new phrase"}})
	resp := do(t, http.MethodPut, srv.URL+"/v1/clips/"+clip.ID+"/", bytes.NewReader(body), "application/json", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update = %d", resp.StatusCode)
	}
	updated := decode[api.ClipUpdated](t, resp)
	if updated.OldClip.Description != "laugh" || updated.NewClip.Description != "renamed" {
		t.Errorf("update body = %+v", updated)
	}
	if len(updated.NewClip.Phrases) != 1 || updated.NewClip.Phrases[0].Text != "new phrase" {
		t.Errorf("phrase set should be replaced, got %+v", updated.NewClip.Phrases)
	}
}

func TestClips_Delete(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	clip := uploadClip(t, srv, "laugh", []string{"x"}, []byte("x"))

	resp := do(t, http.MethodDelete, srv.URL+"/v1/clips/"+clip.ID+"/", nil, "", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	deleted := decode[api.Clip](t, resp)
	if deleted.ID != clip.ID || len(deleted.Phrases) != 1 {
		t.Errorf("deleted body = %+v", deleted)
	}

	resp = do(t, http.MethodGet, srv.URL+"/v1/clips/"+clip.ID+"/", nil, "", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestClips_ErrorMapping(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		do     func() *http.Response
		status int
	}{
		{
			name:   "unknown clip id",
			do:     func() *http.Response { return do(t, http.MethodGet, srv.URL+"/v1/clips/nope/", nil, "", true) },
			status: http.StatusNotFound,
		},
		{
			name: "malformed multipart",
			do: func() *http.Response {
				return do(t, http.MethodPost, srv.URL+"/v1/clips/", strings.NewReader("junk"), "multipart/form-data; boundary=x", true)
			},
			status: http.StatusBadRequest,
		},
		{
			name: "phrase without clip",
			do: func() *http.Response {
				return do(t, http.MethodPost, srv.URL+"/v1/phrases/", strings.NewReader(`{"clip":"","phrase":""}`), "application/json", true)
			},
			status: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		resp := tt.do()
		if resp.StatusCode != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, resp.StatusCode, tt.status)
		}
		body := decode[api.ErrorBody](t, resp)
		if body.Error == "" {
			t.Errorf("%s: error body should carry a message", tt.name)
		}
	}
}

func TestPhrases_CRUD(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	clip := uploadClip(t, srv, "laugh", nil, []byte("x"))

	body, _ := json.Marshal(api.CreatePhrase{Clip: clip.ID, Phrase: "Excuse Me"})
	resp := do(t, http.MethodPost, srv.URL+"/v1/phrases/", bytes.NewReader(body), "application/json", true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create phrase = %d", resp.StatusCode)
	}
	phrase := decode[api.Phrase](t, resp)
	if phrase.Text != "excuse me" || phrase.ClipID != clip.ID {
		t.Errorf("phrase = %+v", phrase)
	}

	resp = do(t, http.MethodGet, srv.URL+"/v1/phrases/", nil, "", true)
	list := decode[api.Phrases](t, resp)
	if list.Items != 1 {
		t.Errorf("list = %+v", list)
	}

	resp = do(t, http.MethodGet, srv.URL+"/v1/phrases/"+phrase.ID+"/", nil, "", true)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get phrase = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodDelete, srv.URL+"/v1/phrases/"+phrase.ID+"/", nil, "", true)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete phrase = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, srv.URL+"/v1/phrases/"+phrase.ID+"/", nil, "", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestClipJSONRoundTrip(t *testing.T) {
	t.Parallel()
	in := api.Clip{
		ID:          "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Description: "laugh",
		AudioPath:   "clips/ab12cd-laugh.mp3",
		PlayCount:   7,
		Phrases:     []api.Phrase{{ID: "p1", ClipID: "c1", Text: "ha"}},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out api.Clip
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != in.ID || out.PlayCount != in.PlayCount || len(out.Phrases) != 1 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
