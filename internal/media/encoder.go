// Package media converts uploaded files to and from the base64 text form the
// hosted models expect.
package media

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
)

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// EncodeImage returns the standard base64 encoding of b.
func EncodeImage(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 reverses EncodeImage.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	return b, nil
}

// AllowedImage reports whether filename carries one of the accepted upload
// extensions (png, jpg, jpeg).
func AllowedImage(filename string) bool {
	_, ok := imageTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ContentType returns the mime type for an accepted image filename, or
// application/octet-stream.
func ContentType(filename string) string {
	if ct, ok := imageTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}
