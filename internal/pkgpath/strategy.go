package pkgpath

import (
	"encoding/xml"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// MapStrategy resolves packages from an explicit name → directory map.
type MapStrategy map[string]string

func (MapStrategy) Name() string { return "config" }

func (m MapStrategy) Find(pkg string) (string, bool, error) {
	dir, ok := m[pkg]
	if !ok {
		return "", false, nil
	}
	dir, err := expand(dir)
	if err != nil {
		return "", false, err
	}
	return dir, true, nil
}

// ROS1Strategy searches ROS_PACKAGE_PATH style roots for a directory
// holding a package.xml that declares the package.
type ROS1Strategy struct {
	// Roots are searched before ROS_PACKAGE_PATH.
	Roots []string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

func (*ROS1Strategy) Name() string { return "ROS_PACKAGE_PATH" }

func (s *ROS1Strategy) Find(pkg string) (string, bool, error) {
	roots := append([]string{}, s.Roots...)
	roots = append(roots, splitList(getenv(s.Getenv, "ROS_PACKAGE_PATH"))...)
	for _, root := range roots {
		if dir, ok := findPackageXML(root, pkg); ok {
			return dir, true, nil
		}
	}
	return "", false, nil
}

// findPackageXML walks root looking for the package. A package directory is
// not descended into further, matching how rospack crawls.
func findPackageXML(root, pkg string) (string, bool) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return fs.SkipDir
		}
		name, ok := readPackageName(filepath.Join(path, "package.xml"))
		if !ok {
			return nil
		}
		if name == pkg || (name == "" && d.Name() == pkg) {
			found = path
			return fs.SkipAll
		}
		return fs.SkipDir
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return "", false
	}
	return found, found != ""
}

type packageManifest struct {
	Name string `xml:"name"`
}

// readPackageName reports whether path is a package manifest and returns
// the name it declares.
func readPackageName(path string) (string, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var m packageManifest
	if err := xml.Unmarshal(raw, &m); err != nil {
		return "", true
	}
	return strings.TrimSpace(m.Name), true
}

// ROS2Strategy looks packages up in the ament resource index of each
// install prefix.
type ROS2Strategy struct {
	// Prefixes are searched before AMENT_PREFIX_PATH.
	Prefixes []string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

func (*ROS2Strategy) Name() string { return "AMENT_PREFIX_PATH" }

func (s *ROS2Strategy) Find(pkg string) (string, bool, error) {
	prefixes := append([]string{}, s.Prefixes...)
	prefixes = append(prefixes, splitList(getenv(s.Getenv, "AMENT_PREFIX_PATH"))...)
	for _, prefix := range prefixes {
		marker := filepath.Join(prefix, "share", "ament_index", "resource_index", "packages", pkg)
		if _, err := os.Stat(marker); err == nil {
			return filepath.Join(prefix, "share", pkg), true, nil
		}
	}
	return "", false, nil
}

func getenv(fn func(string) string, key string) string {
	if fn == nil {
		return os.Getenv(key)
	}
	return fn(key)
}

func splitList(v string) []string {
	var out []string
	for _, p := range filepath.SplitList(v) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
