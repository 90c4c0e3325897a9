package slug

import (
	"strconv"
	"strings"
)

// fallback is used when a name produces an empty slug (e.g. only punctuation).
const fallback = "category"

// Uniquifier hands out slugs that do not collide, case-insensitively, with
// any slug it has seen. Slugs it assigns are remembered, so a batch of
// inserts never collides with itself. Not safe for concurrent use.
type Uniquifier struct {
	taken map[string]struct{}
}

// NewUniquifier seeds a Uniquifier with the slugs that already exist.
func NewUniquifier(existing ...string) *Uniquifier {
	u := &Uniquifier{taken: make(map[string]struct{}, len(existing))}
	for _, s := range existing {
		u.Reserve(s)
	}
	return u
}

// Reserve marks a slug as taken.
func (u *Uniquifier) Reserve(s string) {
	u.taken[strings.ToLower(s)] = struct{}{}
}

// Taken reports whether a slug is already in use.
func (u *Uniquifier) Taken(s string) bool {
	_, ok := u.taken[strings.ToLower(s)]
	return ok
}

// Assign derives a base slug from preferred (or from name when preferred is
// empty), appends -1, -2, … until it is free, reserves it and returns it.
func (u *Uniquifier) Assign(preferred, name string) string {
	base := Generate(preferred)
	if base == "" {
		base = Generate(name)
	}
	if base == "" {
		base = fallback
	}

	candidate := base
	for n := 1; u.Taken(candidate); n++ {
		candidate = base + "-" + strconv.Itoa(n)
	}
	u.Reserve(candidate)
	return candidate
}
