package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// ReelStatusCompleted is the only status a reel is created with.
	ReelStatusCompleted = "completed"
	// DefaultReelDuration is the nominal reel length in seconds.
	DefaultReelDuration = 30
)

// ReelScript is the script stored with a reel.
type ReelScript struct {
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// Reel is a generated reel referencing its script, narration and video.
type Reel struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Topic        string     `json:"topic"`
	Script       ReelScript `json:"script"`
	VoiceoverURL string     `json:"voiceover_url"`
	VideoURL     string     `json:"video_url"`
	Duration     int        `json:"duration"`
	Status       string     `json:"status"`
	S3URL        string     `json:"s3_url,omitempty"`
	S3Key        string     `json:"s3_key,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Archived reports whether the video has been copied into object storage.
func (r *Reel) Archived() bool {
	return r.S3Key != ""
}
