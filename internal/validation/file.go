package validation

import (
	"fmt"
	"mime/multipart"
	"strings"
)

// File describes an uploaded file as declared by the client.
type File struct {
	Name        string
	ContentType string
	Size        int64
}

// FileFromHeader builds a File from a multipart header.
func FileFromHeader(h *multipart.FileHeader) File {
	if h == nil {
		return File{}
	}
	return File{Name: h.Filename, ContentType: h.Header.Get("Content-Type"), Size: h.Size}
}

// ValidateFile rejects files whose declared MIME type is outside allowedTypes
// (when non-empty) or whose size exceeds maxSize (when positive). Sanitized
// holds the cleaned file name.
func ValidateFile(file File, allowedTypes []string, maxSize int64) Result {
	name := SanitizeFileName(file.Name)
	if len(allowedTypes) > 0 {
		declared := strings.ToLower(strings.TrimSpace(strings.SplitN(file.ContentType, ";", 2)[0]))
		allowed := false
		for _, t := range allowedTypes {
			if strings.EqualFold(strings.TrimSpace(t), declared) {
				allowed = true
				break
			}
		}
		if !allowed {
			return Result{Error: fmt.Sprintf("File type %q is not allowed", declared), Sanitized: name}
		}
	}
	if maxSize > 0 && file.Size > maxSize {
		return Result{Error: fmt.Sprintf("File exceeds the maximum size of %d bytes", maxSize), Sanitized: name}
	}
	return Result{Valid: true, Sanitized: name}
}
