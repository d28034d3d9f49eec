package checker

import (
	"iter"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var caseFolder = cases.Fold()

// normalizedCodepoints decodes name as UTF-8, optionally case-folds it, then
// applies canonical decomposition (NFD, mirroring the original apfsck
// "unicursor" that decomposes combining sequences before comparing them),
// and yields one decoded rune at a time. name must be NUL-terminated; decoding stops at the
// terminator without yielding it, matching normalize_next's 0-on-end
// contract.
func normalizedCodepoints(name []byte, caseFold bool) iter.Seq[rune] {
	term := len(name)
	for i, b := range name {
		if b == 0 {
			term = i
			break
		}
	}
	raw := name[:term]
	if caseFold {
		raw = caseFolder.Bytes(raw)
	}
	decomposed := norm.NFD.Bytes(raw)
	return func(yield func(rune) bool) {
		for len(decomposed) > 0 {
			r, size := utf8.DecodeRune(decomposed)
			if !yield(r) {
				return
			}
			decomposed = decomposed[size:]
		}
	}
}
