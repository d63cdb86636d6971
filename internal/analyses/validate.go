package analyses

import "net/http"

// MaxImageBytes is the largest photo accepted for analysis.
const MaxImageBytes = 10 << 20

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// validateImage checks size and sniffs the content type from the bytes.
// The declared multipart type is ignored; only the payload counts.
func validateImage(image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	if len(image) > MaxImageBytes {
		return "", ErrImageTooLarge
	}
	mime := http.DetectContentType(image)
	if _, ok := allowedImageTypes[mime]; !ok {
		return "", ErrUnsupportedImageType
	}
	return mime, nil
}
