package feed

import (
	"fmt"
	"regexp"

	"github.com/feedforge/forger/internal/config"
)

// Filter is a compiled title filter. Matching is case-insensitive; Invert
// keeps entries that do not match.
type Filter struct {
	re     *regexp.Regexp
	invert bool
}

func CompileFilters(filters []config.Filter) ([]Filter, error) {
	out := make([]Filter, 0, len(filters))
	for i, f := range filters {
		re, err := regexp.Compile("(?i)" + f.Title)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		out = append(out, Filter{re: re, invert: f.Invert})
	}
	return out, nil
}

// Include applies every filter to the entry title. Entries without a title
// pass through title filters untouched.
func Include(filters []Filter, title string) bool {
	if len(filters) == 0 || title == "" {
		return true
	}
	for _, f := range filters {
		matches := f.re.MatchString(title)
		if f.invert {
			matches = !matches
		}
		if !matches {
			return false
		}
	}
	return true
}
