package gateway

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// File is one file attached to an import request.
type File struct {
	Content io.Reader
	Name    string
}

// OpenFile opens path for upload. The caller closes the returned closer.
func OpenFile(path string) (File, io.Closer, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied import file
	if err != nil {
		return File{}, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return File{Name: filepath.Base(path), Content: f}, f, nil
}

// upload is a multipart/form-data body built from one or more files.
type upload struct {
	field string
	files []File
}

func (u *upload) label() string {
	if len(u.files) == 1 {
		return "uploading " + u.files[0].Name
	}
	return fmt.Sprintf("uploading %d files", len(u.files))
}

// encode buffers the whole form so a retry can resend it.
func (u *upload) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range u.files {
		part, err := mw.CreateFormFile(u.field, f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form part for %s: %w", f.Name, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
