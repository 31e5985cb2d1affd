// Package access enforces role-based visibility over retrieved chunks.
package access

import (
	"github.com/aneven/knowd/internal/config"
	"github.com/aneven/knowd/internal/storage"
)

// Filter answers whether a role may see a chunk category. It never widens a
// result set: filtering only removes chunks, preserving the caller's order.
type Filter struct {
	roles *config.Roles
}

// NewFilter creates a Filter over the loaded role table.
func NewFilter(roles *config.Roles) *Filter {
	return &Filter{roles: roles}
}

// ValidRole reports whether the role exists in the role table.
func (f *Filter) ValidRole(role string) bool {
	return f.roles.Valid(role)
}

// Categories returns the categories the role may read. Unknown roles get
// nothing.
func (f *Filter) Categories(role string) []string {
	cats, ok := f.roles.Permitted(role)
	if !ok {
		return nil
	}
	return cats
}

// Allowed reports whether the role may read the given category.
func (f *Filter) Allowed(role, category string) bool {
	cats, ok := f.roles.Permitted(role)
	if !ok {
		return false
	}
	for _, c := range cats {
		if c == category {
			return true
		}
	}
	return false
}

// FilterChunks removes chunks whose category the role may not read,
// preserving input order. The result is never longer than the input.
func (f *Filter) FilterChunks(role string, chunks []storage.Chunk) []storage.Chunk {
	cats, ok := f.roles.Permitted(role)
	if !ok {
		return nil
	}
	allowed := make(map[string]bool, len(cats))
	for _, c := range cats {
		allowed[c] = true
	}

	out := make([]storage.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if allowed[ch.Category] {
			out = append(out, ch)
		}
	}
	return out
}
