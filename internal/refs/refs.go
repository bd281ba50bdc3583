// Package refs tracks attachment reference literals embedded in textual fields.
//
// The contract form is the substring "attachments/<decimal-id>/". Copy flows
// rewrite these tokens using an old→new attachment id map.
package refs

import (
	"fmt"
	"regexp"
	"strconv"
)

var refRe = regexp.MustCompile(`attachments/(\d+)/`)

// Extract returns the attachment ids referenced in text, in order of
// appearance, with duplicates preserved.
func Extract(text string) []int64 {
	matches := refRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ExtractUnique returns the distinct attachment ids referenced in text.
func ExtractUnique(text string) []int64 {
	var ids []int64
	seen := make(map[int64]bool)
	for _, id := range Extract(text) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// Rewrite replaces every "attachments/<old>/" token whose id appears in the
// mapping with "attachments/<new>/". Unmapped tokens are left untouched.
func Rewrite(text string, mapping map[int64]int64) string {
	if len(mapping) == 0 {
		return text
	}
	return refRe.ReplaceAllStringFunc(text, func(tok string) string {
		m := refRe.FindStringSubmatch(tok)
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return tok
		}
		newID, ok := mapping[id]
		if !ok {
			return tok
		}
		return fmt.Sprintf("attachments/%d/", newID)
	})
}
