// Package upload validates multipart files and stores them either on local
// disk or in an S3 bucket.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

// MaxSize is the largest accepted file.
const MaxSize = 5 << 20

const (
	CategoryProfilePictures   = "profilePictures"
	CategoryReceipts          = "receipts"
	CategoryMembershipReceipt = "membership-receipt"
)

var (
	ErrType     = apperror.BadRequest("Only image and PDF files are allowed!")
	ErrTooLarge = apperror.BadRequest("File too large. Maximum size is 5MB.")
	ErrMissing  = apperror.BadRequest("No file uploaded.")
)

// File is an accepted upload waiting to be stored.
type File struct {
	Category     string
	OriginalName string
	ContentType  string
	Size         int64
	Body         io.Reader
}

// Stored describes where a file ended up. Path is what clients use to fetch it.
type Stored struct {
	FileName string `json:"fileName"`
	Path     string `json:"filePath"`
}

// Store persists accepted files.
type Store interface {
	Save(ctx context.Context, f File) (Stored, error)
}

// Validate applies the shared type and size rules.
func Validate(contentType string, size int64) error {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !strings.HasPrefix(ct, "image/") && ct != "application/pdf" {
		return ErrType
	}
	if size > MaxSize {
		return ErrTooLarge
	}
	return nil
}

// FromForm reads field from a multipart request and validates it. The caller
// must close the returned body.
func FromForm(c *gin.Context, field, category string) (File, io.Closer, error) {
	// leave headroom for the other form fields
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxSize+1<<20)
	fh, err := c.FormFile(field)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return File{}, nil, ErrTooLarge
		}
		return File{}, nil, ErrMissing
	}
	ct := fh.Header.Get("Content-Type")
	if err := Validate(ct, fh.Size); err != nil {
		return File{}, nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return File{}, nil, fmt.Errorf("open upload: %w", err)
	}
	return File{
		Category:     category,
		OriginalName: fh.Filename,
		ContentType:  ct,
		Size:         fh.Size,
		Body:         f,
	}, f, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// storedName keeps a recognisable base name and makes it unique with a ksuid.
func storedName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		base = "file"
	}
	if len(base) > 64 {
		base = base[:64]
	}
	ext = unsafeChars.ReplaceAllString(ext, "")
	return base + "-" + utilities.NewKSUID() + ext
}
