// Package template implements {variable} interpolation for text nodes,
// including cartesian fan-out when variables are bound to lists.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyList is returned when a referenced variable is bound to a list
// with zero items. An empty list would silently collapse the whole fan-out
// to nothing, so it fails loudly instead.
var ErrEmptyList = errors.New("empty list bound to template variable")

var varPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Variables returns the variable names referenced by the template, in order
// of first appearance, without duplicates.
func Variables(tmpl string) []string {
	matches := varPattern.FindAllStringSubmatch(tmpl, -1)
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Interpolate substitutes bound variables into the template. References
// with no binding are left literal so a half-wired graph still produces a
// readable value.
func Interpolate(tmpl string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(tmpl, func(ref string) string {
		name := ref[1 : len(ref)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return ref
	})
}

// ListInfo describes the fan-out produced by list-bound variables.
type ListInfo struct {
	// Names holds the list variables in template appearance order.
	Names []string `json:"names"`
	// Counts holds the item count per list variable, aligned with Names.
	Counts []int `json:"counts"`
	// Total is the product of Counts, the number of resolved values.
	Total int `json:"total"`
}

// BatchResult is the outcome of resolving a template against scalar and
// list bindings. Lists is nil when no referenced variable was list-bound,
// in which case Values holds exactly one element.
type BatchResult struct {
	Values []string  `json:"values"`
	Lists  *ListInfo `json:"lists,omitempty"`
}

// InterpolateWithLists resolves the template once per combination of the
// list-bound variables it references. Combinations are enumerated in
// row-major order: the first list variable varies slowest, the last
// fastest. Scalar bindings are applied to every combination; unbound
// references stay literal.
func InterpolateWithLists(tmpl string, scalars map[string]string, lists map[string][]string) (*BatchResult, error) {
	var listNames []string
	for _, name := range Variables(tmpl) {
		if _, ok := lists[name]; ok {
			listNames = append(listNames, name)
		}
	}

	if len(listNames) == 0 {
		return &BatchResult{Values: []string{Interpolate(tmpl, scalars)}}, nil
	}

	var empty []string
	for _, name := range listNames {
		if len(lists[name]) == 0 {
			empty = append(empty, name)
		}
	}
	if len(empty) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyList, strings.Join(empty, ", "))
	}

	info := &ListInfo{Names: listNames, Counts: make([]int, len(listNames)), Total: 1}
	for i, name := range listNames {
		info.Counts[i] = len(lists[name])
		info.Total *= info.Counts[i]
	}

	values := make([]string, 0, info.Total)
	indices := make([]int, len(listNames))
	vars := make(map[string]string, len(scalars)+len(listNames))
	for i := 0; i < info.Total; i++ {
		for k, v := range scalars {
			vars[k] = v
		}
		for j, name := range listNames {
			vars[name] = lists[name][indices[j]]
		}
		values = append(values, Interpolate(tmpl, vars))

		for j := len(indices) - 1; j >= 0; j-- {
			indices[j]++
			if indices[j] < info.Counts[j] {
				break
			}
			indices[j] = 0
		}
	}

	return &BatchResult{Values: values, Lists: info}, nil
}
