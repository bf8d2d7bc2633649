package models

import "time"

// File is the metadata of an uploaded file. The bytes live in object storage
// under StoragePath.
type File struct {
	ID           string    `json:"id"            bson:"_id"`
	OriginalName string    `json:"original_name" bson:"original_name"`
	StoragePath  string    `json:"storage_path"  bson:"storage_path"`
	MimeType     string    `json:"mime_type"     bson:"mime_type"`
	Size         int64     `json:"size"          bson:"size"`
	UploadedAt   time.Time `json:"uploaded_at"   bson:"uploaded_at"`
}

// UploadResponse is returned by POST /api/upload.
type UploadResponse struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}
