package imaging

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// SupportedMIMETypes is the allow-list of image types the compressor accepts
var SupportedMIMETypes = []string{"image/png", "image/jpeg", "image/jpg"}

// IsSupportedMIME checks a media type against the allow-list, ignoring parameters
func IsSupportedMIME(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}

	for _, t := range SupportedMIMETypes {
		if t == mediaType {
			return true
		}
	}
	return false
}

// DetectMIME determines a file's media type the way a browser labels a picked
// file: from the extension first, falling back to sniffing the leading bytes.
func DetectMIME(name string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t := mime.TypeByExtension(ext); t != "" {
		mediaType, _, err := mime.ParseMediaType(t)
		if err == nil {
			return mediaType
		}
		return t
	}

	if len(head) == 0 {
		return "application/octet-stream"
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	return mediaType
}

// IsImageFile checks if the given file extension is one the compressor handles
func IsImageFile(path string) bool {
	desiredExtensions := []string{".png", ".jpg", ".jpeg"}

	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range desiredExtensions {
		if v == ext {
			return true
		}
	}
	return false
}
