package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// Source is a piece of text given either inline or by file path.
type Source struct {
	Inline string `json:"inline,omitempty"`
	File   string `json:"file,omitempty"`
}

func (s *Source) IsEmpty() bool {
	if s == nil {
		return true
	}

	return s.File == "" && s.Inline == ""
}

// ResolvePath makes a relative File absolute against basePath.
func (s *Source) ResolvePath(basePath string) {
	if s == nil || s.File == "" || filepath.IsAbs(s.File) {
		return
	}
	s.File = filepath.Join(basePath, s.File)
}

func (s *Source) GetValue() (string, error) {
	if s.Inline != "" {
		return s.Inline, nil
	}

	b, err := os.ReadFile(s.File)
	if err != nil {
		return "", fmt.Errorf("failed to read '%s': %w", s.File, err)
	}

	return string(b), nil
}
