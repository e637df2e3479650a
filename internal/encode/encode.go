// Package encode turns raw image bytes into the text encodings the remote analyzer accepts.
package encode

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jo-hoe/sagextract/internal/common"
)

const (
	dataURLPrefix    = "data:"
	dataURLBase64Sep = ";base64,"
)

// Base64 returns the standard, padded base64 encoding of data.
func Base64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64File reads the file at path and returns its base64 encoding.
func Base64File(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - caller supplies the input path
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return Base64(data), nil
}

// DetectMIME sniffs the image type of data. Anything that is not recognised as an
// image is reported as image/jpeg.
func DetectMIME(data []byte) string {
	mt := mimetype.Detect(data)
	if mt == nil || !strings.HasPrefix(mt.String(), "image/") {
		return common.MimeImageJPEG
	}
	return mt.String()
}

// DataURL builds a data: URL carrying data as base64. An empty mime is sniffed.
func DataURL(mime string, data []byte) string {
	mt := strings.TrimSpace(mime)
	if mt == "" {
		mt = DetectMIME(data)
	}
	return dataURLPrefix + mt + dataURLBase64Sep + Base64(data)
}
