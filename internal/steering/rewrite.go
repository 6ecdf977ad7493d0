// Package steering rewrites key/value lines of simulator input files, such as
// a Telemac steering file ("KEY : value") or a Fortran parameter file
// ("NAME = value").
package steering

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrKeyNotFound indicates that no line of the file carries the key
var ErrKeyNotFound = errors.New("key not found")

// Common separators
const (
	SeparatorColon  = ":"
	SeparatorEquals = "="
)

// Edit replaces every line whose key equals Key with Line. Line is written
// verbatim, so it carries its own indentation.
type Edit struct {
	Key  string
	Line string
}

// Rewriter applies edits to files whose lines are "<key><separator><value>"
type Rewriter struct {
	Separator string
}

// NewRewriter creates a rewriter for the given separator
func NewRewriter(separator string) (*Rewriter, error) {
	if separator == "" {
		return nil, fmt.Errorf("separator cannot be empty")
	}
	return &Rewriter{Separator: separator}, nil
}

// Apply rewrites content and returns the new content and the number of lines
// replaced. Lines that do not match, and every line ending, are left as they
// are. Each edit must match at least one line.
func (r *Rewriter) Apply(content []byte, edits ...Edit) ([]byte, int, error) {
	lines := bytes.SplitAfter(content, []byte("\n"))
	hits := make([]int, len(edits))

	var out bytes.Buffer
	out.Grow(len(content))
	for _, line := range lines {
		body, ending := splitEnding(line)
		key, ok := r.key(body)
		replaced := false
		if ok {
			for i, e := range edits {
				if e.Key == key {
					out.WriteString(e.Line)
					out.Write(ending)
					hits[i]++
					replaced = true
					break
				}
			}
		}
		if !replaced {
			out.Write(line)
		}
	}

	total := 0
	for i, n := range hits {
		if n == 0 {
			return nil, 0, fmt.Errorf("%w: %q", ErrKeyNotFound, edits[i].Key)
		}
		total += n
	}
	return out.Bytes(), total, nil
}

// RewriteFile applies edits to the file at path. The file is replaced
// atomically and keeps its permissions.
func (r *Rewriter) RewriteFile(path string, edits ...Edit) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	updated, n, err := r.Apply(content, edits...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if err := writeAtomic(path, updated, info.Mode().Perm()); err != nil {
		return 0, err
	}
	return n, nil
}

// key returns the trimmed text before the separator
func (r *Rewriter) key(body []byte) (string, bool) {
	idx := bytes.Index(body, []byte(r.Separator))
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(string(body[:idx])), true
}

func splitEnding(line []byte) (body, ending []byte) {
	switch {
	case bytes.HasSuffix(line, []byte("\r\n")):
		return line[:len(line)-2], line[len(line)-2:]
	case bytes.HasSuffix(line, []byte("\n")):
		return line[:len(line)-1], line[len(line)-1:]
	default:
		return line, nil
	}
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}
