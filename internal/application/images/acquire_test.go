package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	domain "github.com/mediscan/mediscan-api/internal/domain/analysis"
)

func TestFromReader_Valid(t *testing.T) {
	img, err := FromReader(bytes.NewReader([]byte("jpegdata")), "image/jpeg", 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.MIME != "image/jpeg" {
		t.Fatalf("expected mime %q, got %q", "image/jpeg", img.MIME)
	}
	if string(img.Data) != "jpegdata" {
		t.Fatalf("expected data %q, got %q", "jpegdata", img.Data)
	}
}

func TestFromReader_RejectsNonImage(t *testing.T) {
	_, err := FromReader(bytes.NewReader([]byte("%PDF-")), "application/pdf", 5)
	if !errors.Is(err, domain.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

// Oversized uploads must be rejected on the declared size, before any read.
func TestFromReader_RejectsDeclaredOversize(t *testing.T) {
	r := &countingReader{}
	_, err := FromReader(r, "image/png", domain.MaxImageBytes+1)
	if !errors.Is(err, domain.ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	if r.reads != 0 {
		t.Fatalf("expected no reads for a declared-oversize upload, got %d", r.reads)
	}
}

func TestFromReader_RejectsActualOversize(t *testing.T) {
	big := bytes.NewReader(make([]byte, domain.MaxImageBytes+1))
	// Declared size lies; the capped read still catches it.
	_, err := FromReader(big, "image/png", 0)
	if !errors.Is(err, domain.ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}

func TestFromReader_RejectsEmpty(t *testing.T) {
	_, err := FromReader(bytes.NewReader(nil), "image/png", 0)
	if !errors.Is(err, domain.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

type countingReader struct{ reads int }

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return 0, errors.New("should not be read")
}

func TestFromDataURL_Valid(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("pngdata"))
	img, err := FromDataURL("data:image/png;base64," + payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.MIME != "image/png" {
		t.Fatalf("expected mime %q, got %q", "image/png", img.MIME)
	}
	if string(img.Data) != "pngdata" {
		t.Fatalf("expected data %q, got %q", "pngdata", img.Data)
	}
}

func TestFromDataURL_UnpaddedBase64(t *testing.T) {
	payload := base64.RawStdEncoding.EncodeToString([]byte("x"))
	img, err := FromDataURL("data:image/jpeg;base64," + payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(img.Data) != "x" {
		t.Fatalf("expected data %q, got %q", "x", img.Data)
	}
}

func TestFromDataURL_RejectsNonImage(t *testing.T) {
	_, err := FromDataURL("data:text/plain;base64,aGVsbG8=")
	if !errors.Is(err, domain.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

func TestFromDataURL_RejectsMissingPayload(t *testing.T) {
	_, err := FromDataURL("data:image/png;base64,")
	if !errors.Is(err, domain.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

func TestFromDataURL_RejectsBadBase64(t *testing.T) {
	_, err := FromDataURL("data:image/png;base64,!!!not-base64!!!")
	if !errors.Is(err, domain.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

// The encoded-length check must fire without decoding multi-megabyte garbage.
func TestFromDataURL_RejectsOversizeEncoded(t *testing.T) {
	payload := strings.Repeat("A", (domain.MaxImageBytes/3+2)*4)
	_, err := FromDataURL("data:image/png;base64," + payload)
	if !errors.Is(err, domain.ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}
