package metadata

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Filter selects classes by their full name. Patterns use '.' as the
// separator, so `Example.*` matches classes of that namespace only while
// `Example.**` also matches nested namespaces.
type Filter struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewFilter compiles include and exclude patterns. With no include patterns
// every class is included; exclusion always wins.
func NewFilter(include, exclude []string) (*Filter, error) {
	includeGlobs, err := compilePatterns(include)
	if err != nil {
		return nil, err
	}
	excludeGlobs, err := compilePatterns(exclude)
	if err != nil {
		return nil, err
	}

	return &Filter{include: includeGlobs, exclude: excludeGlobs}, nil
}

func (f *Filter) Match(class *Class) bool {
	name := class.FullName()
	for _, g := range f.exclude {
		if g.Match(name) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}

	for _, g := range f.include {
		if g.Match(name) {
			return true
		}
	}

	return false
}

// Apply returns copies of the classes accepted by the filter, keeping their order.
func (f *Filter) Apply(classes []Class) []Class {
	accepted := make([]Class, 0, len(classes))
	for i := range classes {
		if f.Match(&classes[i]) {
			accepted = append(accepted, classes[i].Clone())
		}
	}

	return accepted
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, fmt.Errorf("invalid class pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}

	return globs, nil
}
