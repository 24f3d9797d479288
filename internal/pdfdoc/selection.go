package pdfdoc

import "github.com/local/drawcompress/internal/jobs"

// SelectPages turns a 1-based page request into 0-based indices against a
// document of count pages. Out-of-range entries are dropped; order and
// duplicates are kept. An empty request selects every page and returns nil.
func SelectPages(requested []int, count int) ([]int, error) {
	if len(requested) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(requested))
	for _, p := range requested {
		if p >= 1 && p <= count {
			out = append(out, p-1)
		}
	}
	if len(out) == 0 {
		return nil, &jobs.ValidationError{Message: "No valid pages selected."}
	}
	return out, nil
}
