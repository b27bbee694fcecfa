package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/services/activity"
)

type MediaService struct {
	repo     *MediaRepo
	store    *DiskStore
	baseURL  string
	activity *activity.ActivityService
}

func NewMediaService(repo *MediaRepo, store *DiskStore, baseURL string, activity *activity.ActivityService) *MediaService {
	return &MediaService{
		repo:     repo,
		store:    store,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		activity: activity,
	}
}

func invalid(msg string) error {
	return perrors.NewErrInvalidRequest(msg, nil)
}

// DetectType sniffs the content type of body and rewinds it. The declared
// type is used only when the content is not recognised.
func DetectType(body io.ReadSeeker, declared string) (string, error) {
	detected, err := mimetype.DetectReader(body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}

	contentType := detected.String()
	if detected.Is("application/octet-stream") {
		contentType = declared
	}
	contentType, _, _ = strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(contentType)), nil
}

// Upload checks the file against the type and size policy, then stores it and
// records the asset. Nothing is written for a rejected file.
func (s *MediaService) Upload(ctx context.Context, actor *access.Principal, up Upload) (*Asset, error) {
	if up.Body == nil {
		return nil, invalid("file is required")
	}
	if up.Size <= 0 {
		return nil, invalid("file is empty")
	}

	contentType, err := DetectType(up.Body, up.DeclaredType)
	if err != nil {
		return nil, invalid(err.Error())
	}
	rule, ok := allowed[contentType]
	if !ok {
		return nil, invalid(fmt.Sprintf("unsupported file type %q", contentType))
	}
	limit := rule.category.MaxBytes()
	if up.Size > limit {
		return nil, invalid(fmt.Sprintf("%s uploads are limited to %d MiB", rule.category, limit/MiB))
	}

	now := time.Now().UTC()
	a := &Asset{
		ID:           uuid.New(),
		Category:     rule.category,
		OriginalName: path.Base(strings.ReplaceAll(up.Filename, "\\", "/")),
		MimeType:     contentType,
		UploadedBy:   actor.Actor(),
		CreatedAt:    now,
	}
	a.Path = path.Join(string(a.Category), now.Format("2006/01"), a.ID.String()+rule.ext)

	n, err := s.store.Save(a.Path, up.Body, limit)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return nil, invalid(fmt.Sprintf("%s uploads are limited to %d MiB", rule.category, limit/MiB))
		}
		return nil, err
	}
	a.SizeBytes = n

	if err := s.repo.Insert(ctx, a); err != nil {
		if rerr := s.store.Remove(a.Path); rerr != nil {
			slog.ErrorContext(ctx, "Failed to remove orphaned upload", slog.String("path", a.Path), slog.Any("error", rerr))
		}
		return nil, err
	}
	a.URL = s.urlFor(a.Path)

	s.activity.Record(ctx, actor, activity.ResourceMedia, a.ID.String(), "uploaded", fmt.Sprintf("Uploaded %s %s", a.Category, a.OriginalName))
	return a, nil
}

func (s *MediaService) List(ctx context.Context, f Filter, page listquery.Page) ([]Asset, int, error) {
	switch Category(f.Category) {
	case "", CategoryImage, CategoryVideo:
	default:
		return nil, 0, invalid(fmt.Sprintf("invalid category %q", f.Category))
	}

	assets, total, err := s.repo.List(ctx, f, page)
	if err != nil {
		return nil, 0, err
	}
	for i := range assets {
		assets[i].URL = s.urlFor(assets[i].Path)
	}
	return assets, total, nil
}

func (s *MediaService) urlFor(rel string) string {
	return s.baseURL + "/" + rel
}
