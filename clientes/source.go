// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package clientes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jcodagnone/visor/utils/textutils"
	"github.com/rs/zerolog"
)

// Source is where the customer list lives. Loading and saving always move
// the whole document.
type Source interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
	String() string
}

// DefaultCharset is used to decode customer files that are not valid UTF-8.
const DefaultCharset = "windows-1252"

// FileSource stores the customer list in a local JSON file.
type FileSource struct {
	Path    string
	Charset string
	logger  zerolog.Logger
}

// NewFileSource creates a file-backed source.
func NewFileSource(path string, logger zerolog.Logger) *FileSource {
	return &FileSource{
		Path:    path,
		Charset: DefaultCharset,
		logger:  logger.With().Str("source", path).Logger(),
	}
}

func (s *FileSource) String() string {
	return s.Path
}

// Load reads and parses the file.
func (s *FileSource) Load(_ context.Context) (*Document, error) {
	data, err := os.ReadFile(filepath.Clean(s.Path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.Path)
		}

		return nil, fmt.Errorf("reading customers file: %w", err)
	}

	data, err = textutils.DecodeLegacy(data, s.Charset)
	if err != nil {
		return nil, fmt.Errorf("reading customers file: %w", err)
	}

	doc, err := ParseDocument(data, s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int("entries", doc.Len()).Msg("customers loaded")

	return doc, nil
}

// Save rewrites the file. The new content is written next to the original
// and renamed over it so a failure never leaves a truncated list behind.
func (s *FileSource) Save(_ context.Context, doc *Document) error {
	dir := filepath.Dir(s.Path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	if _, err := doc.WriteTo(tmp); err != nil {
		return errors.Join(err, tmp.Close(), os.Remove(tmp.Name()))
	}

	if err := tmp.Close(); err != nil {
		return errors.Join(fmt.Errorf("closing temporary file: %w", err), os.Remove(tmp.Name()))
	}

	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return errors.Join(fmt.Errorf("setting permissions: %w", err), os.Remove(tmp.Name()))
	}

	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return errors.Join(fmt.Errorf("replacing customers file: %w", err), os.Remove(tmp.Name()))
	}

	s.logger.Debug().Int("entries", doc.Len()).Msg("customers saved")

	return nil
}
