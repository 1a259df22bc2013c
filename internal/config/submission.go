package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/interview-prep/internal/schemas"
	"github.com/jonathan/interview-prep/internal/types"
)

// submissionFile is the on-disk form of a job submission. The CV may be
// inline (cv_text) or a path to a text file (cv_file).
type submissionFile struct {
	types.JobInput
	CVFile string `json:"cv_file,omitempty"`
}

// LoadSubmission reads a job submission from a JSON file. A relative cv_file
// is resolved against the submission file's directory.
func LoadSubmission(path string) (*types.JobInput, error) {
	if path == "" {
		return nil, fmt.Errorf("submission path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read submission file %s: %w", path, err)
	}
	return ParseSubmission(data, filepath.Dir(path))
}

// ParseSubmission validates and decodes a submission document. baseDir
// resolves a relative cv_file.
func ParseSubmission(data []byte, baseDir string) (*types.JobInput, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to parse submission JSON: invalid JSON")
	}
	if err := schemas.Validate(schemas.JobInput, data); err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			return nil, fmt.Errorf("invalid submission: %s", ve.Summary())
		}
		return nil, err
	}

	var sub submissionFile
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse submission JSON: %w", err)
	}

	if sub.CVFile != "" {
		if strings.TrimSpace(sub.CVText) != "" {
			return nil, fmt.Errorf("invalid submission: 'cv_text' and 'cv_file' are mutually exclusive")
		}
		cvPath := sub.CVFile
		if !filepath.IsAbs(cvPath) {
			cvPath = filepath.Join(baseDir, cvPath)
		}
		cv, err := os.ReadFile(cvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read cv file %s: %w", cvPath, err)
		}
		sub.CVText = string(cv)
	}

	in := sub.JobInput
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}
	return &in, nil
}
