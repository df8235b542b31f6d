package parser

import (
	"fmt"
	"regexp"
)

// compile compiles pattern and checks it has at least minGroups capture groups.
func compile(pattern string, minGroups int) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	if re.NumSubexp() < minGroups {
		return nil, fmt.Errorf("regex %q needs %d capture group(s), has %d", pattern, minGroups, re.NumSubexp())
	}
	return re, nil
}

// firstSubmatch returns the submatches of the leftmost match in s, with a
// flag telling whether each group participated in the match.
func firstSubmatch(re *regexp.Regexp, s string) (groups []string, present []bool, ok bool) {
	idx := re.FindStringSubmatchIndex(s)
	if idx == nil {
		return nil, nil, false
	}
	n := len(idx) / 2
	groups = make([]string, n)
	present = make([]bool, n)
	for i := 0; i < n; i++ {
		start, end := idx[2*i], idx[2*i+1]
		if start < 0 {
			continue
		}
		groups[i] = s[start:end]
		present[i] = true
	}
	return groups, present, true
}
