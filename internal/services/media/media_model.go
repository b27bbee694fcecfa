package media

import (
	"io"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
)

const (
	MiB           = 1 << 20
	MaxImageBytes = 10 * MiB
	MaxVideoBytes = 100 * MiB
)

// allowed maps every accepted content type to its category and extension.
var allowed = map[string]struct {
	category Category
	ext      string
}{
	"image/jpeg":      {CategoryImage, ".jpg"},
	"image/png":       {CategoryImage, ".png"},
	"image/webp":      {CategoryImage, ".webp"},
	"image/gif":       {CategoryImage, ".gif"},
	"video/mp4":       {CategoryVideo, ".mp4"},
	"video/quicktime": {CategoryVideo, ".mov"},
}

// MaxBytes is the size ceiling for a category.
func (c Category) MaxBytes() int64 {
	if c == CategoryVideo {
		return MaxVideoBytes
	}
	return MaxImageBytes
}

type Asset struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Category     Category  `db:"category" json:"category"`
	OriginalName string    `db:"original_name" json:"original_name"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	SizeBytes    int64     `db:"size_bytes" json:"size_bytes"`
	Path         string    `db:"path" json:"path"`
	URL          string    `db:"-" json:"url"`
	UploadedBy   string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Upload is one multipart file as received.
type Upload struct {
	Filename     string
	DeclaredType string
	Size         int64
	Body         io.ReadSeeker
}

type Filter struct {
	Category string
}
