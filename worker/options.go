package worker

import (
	"path/filepath"
	"sort"
	"strings"
)

// DefaultFileName is the scratch path used when a request carries no file name
const DefaultFileName = "input.png"

// Options maps compressor flag names to values. An empty value is a presence flag.
type Options map[string]string

// Keys returns the option names in sorted order
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildArgs converts options into command line tokens. Each key becomes -key,
// followed by its value when non-empty. The input path is always the last token.
func BuildArgs(opts Options, inputPath string) []string {
	args := make([]string, 0, len(opts)*2+1)
	for _, key := range opts.Keys() {
		if key == "" {
			continue
		}
		args = append(args, "-"+key)
		if v := opts[key]; v != "" {
			args = append(args, v)
		}
	}
	args = append(args, inputPath)

	filtered := args[:0]
	for _, a := range args {
		if a != "" {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// RequestContext carries the scratch paths of one request through stage,
// invoke, collect and cleanup.
type RequestContext struct {
	TaskID     string
	InputPath  string
	OutputPath string
}

// NewRequestContext derives the scratch paths for req. The compressor works in
// place, so input and output share the sanitized file name.
func NewRequestContext(req ImageRequest) RequestContext {
	name := sanitizeName(req.FileName)
	return RequestContext{
		TaskID:     req.TaskID,
		InputPath:  name,
		OutputPath: name,
	}
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(filepath.Base(filepath.ToSlash(name)))
	if name == "" || name == "." || name == "/" || name == ".." {
		return DefaultFileName
	}
	return name
}
