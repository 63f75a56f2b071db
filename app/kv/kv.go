// Package kv defines the key-value service contract consumed by the job store and provides
// its backends: in-memory, SQL (sqlite and mysql) and redis, plus a retrying decorator.
//
// Keys are plain strings. List accepts a glob pattern where '*' matches any run of characters
// and '?' matches exactly one character; everything else is literal. Values are opaque text,
// callers store JSON documents in them.
package kv

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound returned by Get for a missing key
var ErrNotFound = errors.New("key not found")

// Item is a single key-value entry returned by List
type Item struct {
	Key   string
	Value string // empty if List called without values
}

// Store is the key-value service contract
type Store interface {
	List(ctx context.Context, pattern string, withValues bool) ([]Item, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Match reports whether key matches glob pattern
func Match(pattern, key string) bool {
	// iterative matcher with single-star backtracking
	p, k := 0, 0
	starP, starK := -1, 0
	for k < len(key) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == key[k]) && pattern[p] != '*':
			p++
			k++
		case p < len(pattern) && pattern[p] == '*':
			starP, starK = p, k
			p++
		case starP >= 0:
			p = starP + 1
			starK++
			k = starK
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// Prefix returns the literal prefix of a glob pattern, i.e. everything before the first wildcard
func Prefix(pattern string) string {
	if idx := strings.IndexAny(pattern, "*?"); idx >= 0 {
		return pattern[:idx]
	}
	return pattern
}
