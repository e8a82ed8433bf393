package orchestrator

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lepinkainen/imgmin/imaging"
)

// ErrNoFile is returned when a pick or drop carries no files at all
var ErrNoFile = errors.New("no file selected")

// ValidationError reports a file whose type is not on the allow-list
type ValidationError struct {
	Name     string
	MIMEType string
}

func (e *ValidationError) Error() string {
	return "We support only PNG, JPG files."
}

// LoadError reports a file whose bytes could not be read
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	return "Cannot load image."
}

func (e *LoadError) Unwrap() error { return e.Err }

// File is a user-selected file: a name, a declared media type and a way to read it
type File struct {
	Name     string
	MIMEType string
	open     func() (io.ReadCloser, error)
}

// FileFromPath describes a file on disk. The media type is derived from the
// extension, or sniffed from the first bytes when the extension is unknown.
func FileFromPath(path string) File {
	f := File{
		Name: filepath.Base(path),
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
	f.MIMEType = imaging.DetectMIME(f.Name, sniff(path))
	return f
}

// FileFromBytes describes an in-memory file such as a form upload. An empty
// or generic mimeType is replaced by detection.
func FileFromBytes(name, mimeType string, data []byte) File {
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = imaging.DetectMIME(name, data)
	}
	return File{
		Name:     filepath.Base(name),
		MIMEType: mimeType,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func sniff(path string) []byte {
	fh, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer fh.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(fh, head)
	return head[:n]
}

// AcceptFile takes the first of files and checks its type. Anything after the
// first file is ignored.
func AcceptFile(files ...File) (File, error) {
	if len(files) == 0 {
		return File{}, ErrNoFile
	}

	f := files[0]
	if !imaging.IsSupportedMIME(f.MIMEType) {
		return File{}, &ValidationError{Name: f.Name, MIMEType: f.MIMEType}
	}
	return f, nil
}

// LoadFile reads the whole file into memory
func LoadFile(f File) ([]byte, error) {
	if f.open == nil {
		return nil, &LoadError{Name: f.Name, Err: fmt.Errorf("file %q has no data source", f.Name)}
	}

	rc, err := f.open()
	if err != nil {
		return nil, &LoadError{Name: f.Name, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &LoadError{Name: f.Name, Err: err}
	}
	return data, nil
}
