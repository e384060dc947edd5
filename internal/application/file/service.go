package file

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"
	"time"

	"github.com/foraling/foraling-server/internal/domain"
	"github.com/foraling/foraling-server/internal/pkg/id"
)

const jpegQuality = 85

type UploadInput struct {
	Reader     io.Reader
	Filename   string
	UploaderID string
}

// Service stores user images. Every upload is decoded and re-encoded as
// JPEG, so downstream consumers only ever see one format.
type Service interface {
	Upload(ctx context.Context, input UploadInput) (*domain.File, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, *domain.File, error)
	// Delete removes a file; only the uploader may delete their own files.
	Delete(ctx context.Context, fileID, requesterID string) error
}

type objectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type fileStore interface {
	Put(ctx context.Context, f *domain.File) error
	Get(ctx context.Context, fileID string) (*domain.File, error)
	SoftDelete(ctx context.Context, fileID string) error
}

type service struct {
	objects objectStore
	files   fileStore
}

func NewService(objects objectStore, files fileStore) Service {
	return &service{objects: objects, files: files}
}

func (s *service) Upload(ctx context.Context, input UploadInput) (*domain.File, error) {
	if input.UploaderID == "" {
		return nil, fmt.Errorf("uploader required: %w", domain.ErrInvalidInput)
	}

	img, _, err := image.Decode(input.Reader)
	if err != nil {
		return nil, fmt.Errorf("decode image: %v: %w", err, domain.ErrInvalidInput)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	safeName := normalizeFilename(input.Filename)
	fileID := id.New()
	key := fmt.Sprintf("images/%s/%s", input.UploaderID, fileID+".jpg")
	if _, err := s.objects.Upload(ctx, key, bytes.NewReader(buf.Bytes()), "image/jpeg"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	f := &domain.File{
		FileID:           fileID,
		Object:           key,
		Size:             int64(buf.Len()),
		Type:             "image/jpeg",
		Name:             safeName,
		UploadedByUserID: input.UploaderID,
		Enable:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.files.Put(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *service) Download(ctx context.Context, fileID string) (io.ReadCloser, *domain.File, error) {
	f, err := s.files.Get(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if !f.Enable {
		return nil, nil, fmt.Errorf("file not found: %w", domain.ErrNotFound)
	}
	rc, err := s.objects.Download(ctx, f.Object)
	if err != nil {
		return nil, nil, err
	}
	return rc, f, nil
}

func (s *service) Delete(ctx context.Context, fileID, requesterID string) error {
	f, err := s.files.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if !f.Enable {
		return fmt.Errorf("file not found: %w", domain.ErrNotFound)
	}
	if f.UploadedByUserID != requesterID {
		return fmt.Errorf("access denied: %w", domain.ErrForbidden)
	}
	if err := s.objects.Delete(ctx, f.Object); err != nil {
		return err
	}
	return s.files.SoftDelete(ctx, fileID)
}

// normalizeFilename keeps only the base name, swaps the extension for .jpg
// and strips characters that complicate object keys.
func normalizeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" || strings.Trim(out, "_") == "" {
		out = "image"
	}
	return out + ".jpg"
}
