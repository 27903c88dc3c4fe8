package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultFileFolder is used when an upload names no folder.
const DefaultFileFolder = "documents"

// StoredFile describes one blob under a patient's folder.
type StoredFile struct {
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	Folder      string    `json:"folder"`
	PatientID   uuid.UUID `json:"patient_id"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
	URL         string    `json:"url,omitempty"`
}
