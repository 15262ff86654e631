package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"livechat/internal/pkg/errs"
)

const (
	// MaxImageSizeMB is the largest accepted profile image.
	MaxImageSizeMB = 5

	// MaxImageSize is MaxImageSizeMB in bytes.
	MaxImageSize int64 = MaxImageSizeMB << 20

	// UploadExpiration is the lifetime of a presigned upload URL.
	UploadExpiration = 10 * time.Minute

	// imagePrefix is the key namespace of profile images.
	imagePrefix = "profiles/"
)

// allowedImageTypes maps accepted MIME types to the key extension.
var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ValidateImage checks the declared MIME type and size of an upload.
func ValidateImage(mimeType string, size int64) error {
	if _, ok := allowedImageTypes[strings.ToLower(mimeType)]; !ok {
		return errs.NewError(errs.ErrFileTypeNotAllowed)
	}
	if size <= 0 || size > MaxImageSize {
		return errs.NewError(errs.ErrFileTooLarge, MaxImageSizeMB)
	}
	return nil
}

// ImageKey returns a fresh object key for an image of userID. field is the
// profile field the image is meant for.
func ImageKey(userID, field, mimeType string) string {
	ext := allowedImageTypes[strings.ToLower(mimeType)]
	return fmt.Sprintf("%s%s/%s/%s%s", imagePrefix, userID, field, uuid.New().String(), ext)
}

// OwnsKey reports whether key is an image key issued to userID.
func OwnsKey(userID, key string) bool {
	return strings.HasPrefix(key, imagePrefix+userID+"/")
}

// IsImageKey reports whether value is an object key rather than an external URL.
func IsImageKey(value string) bool {
	return strings.HasPrefix(value, imagePrefix)
}
