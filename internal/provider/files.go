// ABOUTME: Loads attachment files for models that accept them
// ABOUTME: Enforces a per-file size cap and detects the MIME type

package provider

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize caps a single attachment.
const MaxFileSize = 20 << 20

// File is an attachment read into memory.
type File struct {
	Path     string
	Name     string
	MIMEType string
	Data     []byte
}

// IsText reports whether the attachment can be inlined as text.
func (f File) IsText() bool {
	return strings.HasPrefix(f.MIMEType, "text/") ||
		strings.HasPrefix(f.MIMEType, "application/json") ||
		strings.HasPrefix(f.MIMEType, "application/xml")
}

// LoadFiles reads every path. It fails on the first missing, unreadable or
// oversized file.
func LoadFiles(paths []string) ([]File, error) {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		f, err := loadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func loadFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("opening attachment: %w", err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return File{}, fmt.Errorf("stat attachment %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("attachment %s is a directory", path)
	}
	if info.Size() > MaxFileSize {
		return File{}, fmt.Errorf("attachment %s is %d bytes, limit is %d", path, info.Size(), MaxFileSize)
	}

	data, err := io.ReadAll(io.LimitReader(fh, MaxFileSize+1))
	if err != nil {
		return File{}, fmt.Errorf("reading attachment %s: %w", path, err)
	}
	if len(data) > MaxFileSize {
		return File{}, fmt.Errorf("attachment %s exceeds %d bytes", path, MaxFileSize)
	}

	return File{
		Path:     path,
		Name:     filepath.Base(path),
		MIMEType: detectMIME(path, data),
		Data:     data,
	}, nil
}

func detectMIME(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
