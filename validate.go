package sapling

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

type keySet map[Key]struct{}

// walker validates the dependency graph depth-first. For every registration
// it remembers the keys reachable from it, so shared subgraphs are walked
// once while revisits of a key on the current path are still detected.
type walker struct {
	r     *Registry
	reach map[*descriptor]keySet
}

func newWalker(r *Registry) *walker {
	return &walker{r: r, reach: make(map[*descriptor]keySet)}
}

// validateAll must hold r.mu.
func (w *walker) validateAll() error {
	for _, key := range w.r.order {
		for _, d := range w.r.registrations(key) {
			if _, err := w.walk(d, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// walk returns the keys reachable from d. path holds the keys of the
// registrations currently being walked, outermost first.
func (w *walker) walk(d *descriptor, path []Key) (keySet, error) {
	if reach, ok := w.reach[d]; ok {
		for _, k := range path {
			if _, hit := reach[k]; hit {
				return nil, circularError(append(path, d.key, "...", k))
			}
		}
		return reach, nil
	}

	path = append(path[:len(path):len(path)], d.key)
	reach := make(keySet)

	for _, dep := range d.deps {
		// Reserved capabilities are leaves; generic templates are checked
		// when they are materialized.
		if dep.Kind.reserved() || dep.Kind == KindGeneric {
			continue
		}

		targets, err := w.targets(d, dep)
		if err != nil {
			return nil, err
		}

		for _, child := range targets {
			if slices.Contains(path, child.key) {
				return nil, circularError(append(path, child.key))
			}
			if err := checkEdge(d, child); err != nil {
				return nil, err
			}

			sub, err := w.walk(child, path)
			if err != nil {
				return nil, err
			}
			reach[child.key] = struct{}{}
			maps.Copy(reach, sub)
		}
	}

	w.reach[d] = reach
	return reach, nil
}

func (w *walker) targets(parent *descriptor, dep Dependency) ([]*descriptor, error) {
	if dep.Kind == KindSlice {
		regs := w.r.registrations(dep.Key)
		if len(regs) == 0 {
			return nil, fmt.Errorf("%w: %s required by %s", ErrServiceNotFound, dep, parent.key)
		}
		return regs, nil
	}

	d, ok := w.r.lookup(dep.Key)
	if !ok {
		return nil, fmt.Errorf("%w: %s required by %s", ErrServiceNotFound, dep.Key, parent.key)
	}
	return []*descriptor{d}, nil
}

// checkEdge enforces the lifecycle rules for parent depending on child.
func checkEdge(parent, child *descriptor) error {
	if parent.lifecycle.accepts(child.lifecycle) {
		return nil
	}
	return fmt.Errorf("%w: %s %s depends on %s %s",
		ErrLifecycle, parent.lifecycle, parent.key, child.lifecycle, child.key)
}

func circularError(chain []Key) error {
	parts := make([]string, len(chain))
	for i, k := range chain {
		parts[i] = k.String()
	}
	return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(parts, " -> "))
}
