package urdf

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// Preprocessor expands a macro document into plain URDF XML.
type Preprocessor interface {
	Expand(path string) ([]byte, error)
}

// XacroCommand runs an external xacro executable. The expanded document is
// read from its stdout; its stderr goes to the debug log so nothing leaks
// onto the record stream.
type XacroCommand struct {
	Command string
	Args    []string
	Logger  *slog.Logger
}

// DefaultXacroCommand is the executable looked up on PATH.
const DefaultXacroCommand = "xacro"

// Expand implements Preprocessor.
func (x XacroCommand) Expand(path string) ([]byte, error) {
	name := x.Command
	if name == "" {
		name = DefaultXacroCommand
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("urdf: xacro %s: command %q not available: %w", path, name, err)
	}

	args := append(append([]string{}, x.Args...), path)
	cmd := exec.Command(bin, args...)
	cmd.Dir = filepath.Dir(path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if x.Logger != nil && stderr.Len() > 0 {
		x.Logger.Debug("xacro stderr", "path", path, "output", strings.TrimSpace(stderr.String()))
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("urdf: xacro %s: exit status %d: %s", path, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("urdf: xacro %s: %w", path, runErr)
	}
	return stdout.Bytes(), nil
}

// Supported reports whether path has a recognized description suffix.
func Supported(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".urdf") || IsXacro(path)
}

// IsXacro reports whether path names a macro document.
func IsXacro(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".xacro")
}

// Load parses path, expanding it with pre first when it is a macro document.
func Load(path string, pre Preprocessor) (*Document, error) {
	if !IsXacro(path) {
		return ParseFile(path)
	}
	if pre == nil {
		return nil, fmt.Errorf("urdf: load %s: no xacro preprocessor configured", path)
	}
	raw, err := pre.Expand(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, path)
}
