// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug provides URL-friendly slug generation and collision-free
// slug assignment for category names.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLen caps a generated slug. It leaves room under the 300 character
// column limit for a -N suffix.
const MaxLen = 200

// Generate creates a URL-friendly slug from the given string. Accents are
// folded ("Café" becomes "cafe"), whitespace and hyphen runs become a single
// hyphen and any other character is dropped.
// Example: "Arts & Crafts 2026" → "arts-crafts-2026"
func Generate(s string) string {
	folded, _, err := transform.String(foldAccents(), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingHyphen = true
		}
		if b.Len() >= MaxLen {
			break
		}
	}

	out := b.String()
	if len(out) > MaxLen {
		out = out[:MaxLen]
	}
	return strings.TrimRight(out, "-")
}

// foldAccents decomposes runes and drops the combining marks.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
