package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/thinker/internal/config"
	"github.com/roach88/thinker/internal/harness"
	"github.com/roach88/thinker/internal/store"
)

// LoadError represents an error that occurred while locating or loading
// scenario files.
type LoadError struct {
	Code    string
	Message string
	Path    string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FindScenarioFiles returns the YAML scenario files at path, sorted.
//
// path may be a single file or a directory, which is walked recursively.
// Directories named "golden" are skipped. A non-empty filter is a glob
// matched against the file name without its extension.
func FindScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scenarios not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error(), Path: path}
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "golden" && p != path {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// loadScenario loads one scenario file, mapping a missing file to
// ErrCodeNotFound.
func loadScenario(path string) (*harness.Scenario, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scenario not found: %s", path)}
	}
	return harness.LoadScenario(path)
}

// validationErrors extracts scenario validation errors from err, or nil if
// err is not a validation failure.
func validationErrors(err error) []harness.ValidationError {
	var verrs harness.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	return nil
}

// loadConfig reads the --config file, if any, and THINKER_* overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openStore opens the run database.
func openStore(path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
