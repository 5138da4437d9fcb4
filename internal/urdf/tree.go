package urdf

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoot means every link has a parent joint.
	ErrNoRoot = errors.New("urdf: no root link")
	// ErrMultipleRoots means more than one link lacks a parent joint.
	ErrMultipleRoots = errors.New("urdf: multiple root links")
	// ErrCycle means following parent joints never reaches the root.
	ErrCycle = errors.New("urdf: joint cycle")
)

// Link returns the link with the given name.
func (d *Document) Link(name string) (*Link, bool) {
	l, ok := d.links[name]
	return l, ok
}

// ParentJoint returns the joint whose child is the named link.
func (d *Document) ParentJoint(link string) (*Joint, bool) {
	j, ok := d.parentJoint[link]
	return j, ok
}

// Root returns the name of the single link without a parent joint.
func (d *Document) Root() (string, error) {
	root := ""
	for _, l := range d.Links {
		if _, hasParent := d.parentJoint[l.Name]; hasParent {
			continue
		}
		if root != "" {
			return "", fmt.Errorf("%w: %q and %q", ErrMultipleRoots, root, l.Name)
		}
		root = l.Name
	}
	if root == "" {
		return "", ErrNoRoot
	}
	return root, nil
}

// Chain returns the alternating link/joint names from root to tip,
// both ends included: [root, joint, link, joint, ..., tip].
func (d *Document) Chain(root, tip string) ([]string, error) {
	if _, ok := d.links[tip]; !ok {
		return nil, fmt.Errorf("urdf: unknown link %q", tip)
	}

	chain := []string{tip}
	link := tip
	for steps := 0; link != root; steps++ {
		if steps > len(d.Joints) {
			return nil, fmt.Errorf("%w: through link %q", ErrCycle, tip)
		}
		j, ok := d.parentJoint[link]
		if !ok {
			return nil, fmt.Errorf("urdf: link %q is not connected to root %q", tip, root)
		}
		chain = append(chain, j.Name, j.Parent)
		link = j.Parent
	}

	for i, k := 0, len(chain)-1; i < k; i, k = i+1, k-1 {
		chain[i], chain[k] = chain[k], chain[i]
	}
	return chain, nil
}

// LinkChain returns only the link names of Chain(root, tip).
func (d *Document) LinkChain(root, tip string) ([]string, error) {
	chain, err := d.Chain(root, tip)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(chain)/2+1)
	for i := 0; i < len(chain); i += 2 {
		links = append(links, chain[i])
	}
	return links, nil
}
