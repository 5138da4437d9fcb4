// Package pkgpath turns the asset references found in robot descriptions
// (package://, file:// and plain paths) into filesystem paths.
package pkgpath

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

const (
	packageScheme = "package://"
	fileScheme    = "file://"
)

// Strategy locates the root directory of a named package.
// ok is false when the strategy has no answer; err is reserved for
// failures that should stop the search.
type Strategy interface {
	Name() string
	Find(pkg string) (dir string, ok bool, err error)
}

// Resolver applies its strategies in order.
type Resolver struct {
	Strategies []Strategy
}

// New returns a resolver that consults the explicit package map first,
// then ROS1 package roots, then ROS2 ament prefixes.
func New(packages map[string]string, rosRoots, amentPrefixes []string) *Resolver {
	return &Resolver{Strategies: []Strategy{
		MapStrategy(packages),
		&ROS1Strategy{Roots: rosRoots},
		&ROS2Strategy{Prefixes: amentPrefixes},
	}}
}

// Resolve returns the filesystem path for ref.
func (r *Resolver) Resolve(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, packageScheme):
		return r.resolvePackage(strings.TrimPrefix(ref, packageScheme))
	case strings.HasPrefix(ref, fileScheme):
		return expand(strings.TrimPrefix(ref, fileScheme))
	default:
		return expand(ref)
	}
}

// ResolveRelative is Resolve, except that a relative literal result is
// joined onto baseDir.
func (r *Resolver) ResolveRelative(ref, baseDir string) (string, error) {
	p, err := r.Resolve(ref)
	if err != nil {
		return "", err
	}
	if baseDir != "" && !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return p, nil
}

func (r *Resolver) resolvePackage(rest string) (string, error) {
	pkg, rel, _ := strings.Cut(rest, "/")
	if pkg == "" {
		return "", fmt.Errorf("pkgpath: resolve %s%s: empty package name", packageScheme, rest)
	}
	var tried []string
	for _, s := range r.Strategies {
		dir, ok, err := s.Find(pkg)
		if err != nil {
			return "", fmt.Errorf("pkgpath: resolve %s%s: %s: %w", packageScheme, rest, s.Name(), err)
		}
		if ok {
			return filepath.Join(dir, filepath.FromSlash(rel)), nil
		}
		tried = append(tried, s.Name())
	}
	return "", &PackageNotFoundError{Package: pkg, Tried: tried}
}

func expand(p string) (string, error) {
	out, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("pkgpath: expand %s: %w", p, err)
	}
	return out, nil
}

// PackageNotFoundError reports a package:// reference no strategy could
// locate.
type PackageNotFoundError struct {
	Package string
	Tried   []string
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("pkgpath: package %q not found (tried %s). "+
		"Source the workspace that provides it so ROS_PACKAGE_PATH or AMENT_PREFIX_PATH "+
		"lists it, or map it under \"packages\" in the config file",
		e.Package, strings.Join(e.Tried, ", "))
}
