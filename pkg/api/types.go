// Package api defines the JSON types exchanged between the heckler admin
// HTTP API and its clients, including the hecklerctl command-line tool.
package api

import "time"

// Clip is the wire representation of a stored audio clip.
type Clip struct {
	// ID is a lexicographically sortable, time-prefixed identifier.
	ID string `json:"id"`
	// CreatedAt is the UTC creation time, second resolution.
	CreatedAt time.Time `json:"created_at"`
	// LastPlayedAt is the UTC time the clip last played. Equals
	// CreatedAt for clips that have never played.
	LastPlayedAt time.Time `json:"last_played_at"`
	// PlayCount is how often the clip has been played.
	PlayCount int64 `json:"play_count"`
	// SpeechDetected is the transcript recorded at ingest time, if any.
	SpeechDetected string `json:"speech_detected"`
	// Description is the operator-supplied human-readable label.
	Description string `json:"description"`
	// AudioPath is the clip file path relative to the data directory.
	AudioPath string `json:"audio_path"`
	// Phrases lists the trigger phrases attached to the clip. Omitted
	// on endpoints that do not resolve phrases.
	Phrases []Phrase `json:"phrases,omitempty"`
}

// Clips is the response body for clip listings.
type Clips struct {
	Items int    `json:"items"`
	Clips []Clip `json:"clips"`
}

// ClipUpload is the metadata half of a multipart clip upload, and the
// request body for clip updates.
type ClipUpload struct {
	Description string   `json:"description"`
	Phrases     []string `json:"phrases,omitempty"`
}

// ClipUpdated is returned from a clip update so callers can see what
// changed.
type ClipUpdated struct {
	OldClip Clip `json:"old_clip"`
	NewClip Clip `json:"new_clip"`
}

// Phrase is the wire representation of a trigger phrase.
type Phrase struct {
	ID     string `json:"id"`
	ClipID string `json:"clip_id,omitempty"`
	Text   string `json:"text"`
}

// Phrases is the response body for phrase listings.
type Phrases struct {
	Items   int      `json:"items"`
	Phrases []Phrase `json:"phrases"`
}

// CreatePhrase is the request body for attaching a phrase to a clip.
type CreatePhrase struct {
	Clip   string `json:"clip"`
	Phrase string `json:"phrase"`
}

// Status is the response body of the unauthenticated status endpoint.
type Status struct {
	// DBVersion is the database server version when it could be
	// determined.
	DBVersion string `json:"db_version,omitempty"`
	// DBConnections is the number of open connections in the pool.
	DBConnections int `json:"db_connections"`
}

// ErrorBody is the JSON body returned with every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
}
