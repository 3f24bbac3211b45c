package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hecklerbot/heckler/internal/store"
	"github.com/hecklerbot/heckler/pkg/api"
)

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var st api.Status
	if s.status != nil {
		version, connections, err := s.status(r.Context())
		if err != nil {
			slog.Error("status probe failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, errorBody("store unavailable"))
			return
		}
		st.DBVersion, st.DBConnections = version, connections
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listClips(w http.ResponseWriter, r *http.Request) {
	clips, err := s.store.ListClips(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := api.Clips{Items: len(clips), Clips: make([]api.Clip, 0, len(clips))}
	for _, c := range clips {
		ac, err := s.clipWithPhrases(r.Context(), c)
		if err != nil {
			s.writeError(w, err)
			return
		}
		out.Clips = append(out.Clips, ac)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createClip(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, fmt.Errorf("%w: parse multipart form: %v", errBadRequest, err))
		return
	}

	metaField := r.FormValue("clip_metadata")
	if metaField == "" {
		s.writeError(w, fmt.Errorf("%w: missing clip_metadata field", errBadRequest))
		return
	}
	var upload api.ClipUpload
	if err := json.Unmarshal([]byte(metaField), &upload); err != nil {
		s.writeError(w, fmt.Errorf("%w: decode clip_metadata: %v", errBadRequest, err))
		return
	}

	file, header, err := r.FormFile("clip")
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: missing clip field", errBadRequest))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: read clip upload: %v", errBadRequest, err))
		return
	}

	clip, phrases, err := s.store.AddClip(r.Context(), data, upload.Description, upload.Phrases, uploadFilename(header))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAPIClip(clip, phrases))
}

func (s *Server) getClip(w http.ResponseWriter, r *http.Request) {
	clip, err := s.store.GetClip(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out, err := s.clipWithPhrases(r.Context(), clip)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) updateClip(w http.ResponseWriter, r *http.Request) {
	var upload api.ClipUpload
	if err := json.NewDecoder(r.Body).Decode(&upload); err != nil {
		s.writeError(w, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}

	id := r.PathValue("id")
	oldClip, err := s.store.GetClip(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	oldOut, err := s.clipWithPhrases(r.Context(), oldClip)
	if err != nil {
		s.writeError(w, err)
		return
	}

	newClip, err := s.store.UpdateClip(r.Context(), id, upload.Description, upload.Phrases)
	if err != nil {
		s.writeError(w, err)
		return
	}
	newOut, err := s.clipWithPhrases(r.Context(), newClip)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ClipUpdated{OldClip: oldOut, NewClip: newOut})
}

func (s *Server) deleteClip(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Collect the phrases before the cascade wipes them.
	phrases, err := s.store.PhrasesForClip(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	clip, err := s.store.RemoveClip(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIClip(clip, phrases))
}

func (s *Server) clipAudio(w http.ResponseWriter, r *http.Request) {
	clip, err := s.store.GetClip(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	f, err := os.Open(filepath.Join(s.dataDir, clip.AudioPath))
	if err != nil {
		s.writeError(w, fmt.Errorf("open clip audio: %w", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(clip.AudioPath)))
	if _, err := io.Copy(w, f); err != nil {
		slog.Error("failed to stream clip audio", "clip", clip.ID, "error", err)
	}
}

func (s *Server) listPhrases(w http.ResponseWriter, r *http.Request) {
	phrases, err := s.store.ListPhrases(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := api.Phrases{Items: len(phrases), Phrases: make([]api.Phrase, 0, len(phrases))}
	for _, p := range phrases {
		out.Phrases = append(out.Phrases, toAPIPhrase(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createPhrase(w http.ResponseWriter, r *http.Request) {
	var req api.CreatePhrase
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}
	if req.Clip == "" || req.Phrase == "" {
		s.writeError(w, fmt.Errorf("%w: clip and phrase must both be set", errBadRequest))
		return
	}
	p, err := s.store.AddPhrase(r.Context(), req.Clip, req.Phrase)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAPIPhrase(p))
}

func (s *Server) getPhrase(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPhrase(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIPhrase(p))
}

func (s *Server) deletePhrase(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.RemovePhrase(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIPhrase(p))
}

// clipWithPhrases resolves a clip's phrases and converts to the wire type.
func (s *Server) clipWithPhrases(ctx context.Context, c store.Clip) (api.Clip, error) {
	phrases, err := s.store.PhrasesForClip(ctx, c.ID)
	if err != nil {
		return api.Clip{}, err
	}
	return toAPIClip(c, phrases), nil
}

func toAPIClip(c store.Clip, phrases []store.Phrase) api.Clip {
	out := api.Clip{
		ID:             c.ID,
		CreatedAt:      c.CreatedAt,
		LastPlayedAt:   c.LastPlayedAt,
		PlayCount:      c.PlayCount,
		SpeechDetected: c.SpeechDetected,
		Description:    c.Description,
		AudioPath:      c.AudioPath,
	}
	for _, p := range phrases {
		out.Phrases = append(out.Phrases, toAPIPhrase(p))
	}
	return out
}

func toAPIPhrase(p store.Phrase) api.Phrase {
	return api.Phrase{ID: p.ID, ClipID: p.ClipID, Text: p.Text}
}

func uploadFilename(header *multipart.FileHeader) string {
	if header != nil && header.Filename != "" {
		return header.Filename
	}
	return "clip"
}

// writeError maps store and request errors to status codes per the API
// contract.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, store.ErrUnavailable):
		slog.Error("store unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody("store unavailable"))
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func errorBody(msg string) api.ErrorBody {
	return api.ErrorBody{Error: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
