package model

import "time"

// Detection is one successful detection, kept for history.
type Detection struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DetectionID string    `gorm:"size:36;not null;uniqueIndex" json:"detection_id"`
	SessionID   string    `gorm:"size:36;index" json:"session_id"`
	FileName    string    `gorm:"size:255" json:"file_name"`
	MIMEType    string    `gorm:"size:32;not null" json:"mime_type"`
	ImageSHA256 string    `gorm:"size:64;not null;index" json:"image_sha256"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Label       string    `gorm:"size:16;not null;index" json:"label"`
	Confidence  float64   `gorm:"not null" json:"confidence"`
	ProbAI      float32   `json:"prob_ai"`
	ProbReal    float32   `json:"prob_real"`
	Cached      bool      `json:"cached"`
	LatencyMS   int64     `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}
