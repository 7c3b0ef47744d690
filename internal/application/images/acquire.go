package images

import (
	"encoding/base64"
	"io"
	"strings"

	domain "github.com/mediscan/mediscan-api/internal/domain/analysis"
)

// FromReader reads an uploaded image and validates type and size. The
// declared size (from the multipart header) lets us reject oversized files
// before reading them; the read is capped regardless.
func FromReader(r io.Reader, mime string, declaredSize int64) (domain.SourceImage, error) {
	if !strings.HasPrefix(mime, "image/") {
		return domain.SourceImage{}, domain.ErrInvalidImage
	}
	if declaredSize > domain.MaxImageBytes {
		return domain.SourceImage{}, domain.ErrImageTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(r, domain.MaxImageBytes+1))
	if err != nil {
		return domain.SourceImage{}, err
	}
	if len(data) > domain.MaxImageBytes {
		return domain.SourceImage{}, domain.ErrImageTooLarge
	}
	if len(data) == 0 {
		return domain.SourceImage{}, domain.ErrInvalidImage
	}
	return domain.SourceImage{MIME: mime, Data: data}, nil
}

// FromDataURL decodes a "data:image/jpeg;base64,..." payload, the shape
// camera captures arrive in.
func FromDataURL(s string) (domain.SourceImage, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:image/") {
		return domain.SourceImage{}, domain.ErrInvalidImage
	}
	meta, payload, ok := strings.Cut(s, ",")
	if !ok || payload == "" {
		return domain.SourceImage{}, domain.ErrInvalidImage
	}

	mime := strings.TrimPrefix(meta, "data:")
	mime, _, _ = strings.Cut(mime, ";")

	// Reject on the encoded length first: 4 base64 chars per 3 bytes.
	if len(payload) > (domain.MaxImageBytes/3+1)*4 {
		return domain.SourceImage{}, domain.ErrImageTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
	}
	if err != nil || len(data) == 0 {
		return domain.SourceImage{}, domain.ErrInvalidImage
	}
	if len(data) > domain.MaxImageBytes {
		return domain.SourceImage{}, domain.ErrImageTooLarge
	}
	return domain.SourceImage{MIME: mime, Data: data}, nil
}
