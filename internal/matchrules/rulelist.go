package matchrules

import (
	"sort"

	"github.com/getpactd/pactd/internal/pathexp"
)

// Combine is the policy for a node carrying multiple rules.
type Combine string

const (
	CombineAnd Combine = "AND"
	CombineOr  Combine = "OR"
)

// RuleList is the ordered set of rules attached to one path, with the
// policy for combining their results.
type RuleList struct {
	Combine Combine
	Rules   []Rule
}

// CategoryName names a matching-rule category of an HTTP part or
// message.
type CategoryName string

const (
	CategoryBody     CategoryName = "body"
	CategoryHeaders  CategoryName = "header"
	CategoryQuery    CategoryName = "query"
	CategoryPath     CategoryName = "path"
	CategoryMethod   CategoryName = "method"
	CategoryStatus   CategoryName = "status"
	CategoryMetadata CategoryName = "metadata"
	CategoryContent  CategoryName = "content"
)

// Category maps path expressions (or parameter/header names for the
// query and header categories) to rule lists.
type Category map[string]RuleList

// Categories is the full matching-rule tree of one HTTP part.
type Categories map[CategoryName]Category

// Add appends a rule at the given path within a category, creating the
// category and rule list as needed. The default combine policy is AND.
func (c Categories) Add(name CategoryName, path string, rule Rule) {
	cat, ok := c[name]
	if !ok {
		cat = Category{}
		c[name] = cat
	}
	list := cat[path]
	if list.Combine == "" {
		list.Combine = CombineAnd
	}
	list.Rules = append(list.Rules, rule)
	cat[path] = list
}

// IsEmpty reports whether no category holds any rule.
func (c Categories) IsEmpty() bool {
	for _, cat := range c {
		for _, list := range cat {
			if len(list.Rules) > 0 {
				return false
			}
		}
	}
	return true
}

// Lookup finds the best-weighted rule list in a category for the given
// concrete path. When several pattern paths match, the highest weight
// wins; ties break to the longer pattern. The boolean reports whether
// any rule matched.
func (c Categories) Lookup(name CategoryName, concrete []string) (RuleList, bool) {
	list, _, ok := c.Resolve(name, concrete)
	return list, ok
}

// Resolve is Lookup plus the length of the winning pattern, which the
// matcher kernel needs to demote length-checking rules inherited from
// an ancestor node.
func (c Categories) Resolve(name CategoryName, concrete []string) (RuleList, int, bool) {
	cat, ok := c[name]
	if !ok {
		return RuleList{}, 0, false
	}

	type candidate struct {
		weight int
		length int
		list   RuleList
	}
	var best *candidate

	for pattern, list := range cat {
		parsed, err := pathexp.Parse(pattern)
		if err != nil {
			continue
		}
		w := parsed.Weight(concrete)
		if w == 0 {
			continue
		}
		cand := candidate{weight: w, length: len(parsed), list: list}
		if best == nil || cand.weight > best.weight ||
			(cand.weight == best.weight && cand.length > best.length) {
			best = &cand
		}
	}

	if best == nil {
		return RuleList{}, 0, false
	}
	return best.list, best.length, true
}

// LookupName finds the rule list for a plain name key, as used by the
// header and query categories where keys are parameter names rather
// than path expressions.
func (c Categories) LookupName(name CategoryName, key string) (RuleList, bool) {
	cat, ok := c[name]
	if !ok {
		return RuleList{}, false
	}
	if list, ok := cat[key]; ok {
		return list, true
	}
	// A pact written against the V2 shape keys headers and query
	// parameters as path expressions.
	return c.Lookup(name, []string{"$", key})
}

// HasTypeMatcher reports whether the best rule list for the concrete
// path contains a type matcher, which switches array comparison from
// positional to template mode.
func (c Categories) HasTypeMatcher(name CategoryName, concrete []string) bool {
	list, ok := c.Lookup(name, concrete)
	if !ok {
		return false
	}
	for _, r := range list.Rules {
		if r.IsTypeMatcher() {
			return true
		}
	}
	return false
}

// HasValuesMatcher reports whether the best rule list for the concrete
// path suppresses key-set equality on objects.
func (c Categories) HasValuesMatcher(name CategoryName, concrete []string) bool {
	list, ok := c.Lookup(name, concrete)
	if !ok {
		return false
	}
	for _, r := range list.Rules {
		if r.IsValuesMatcher() {
			return true
		}
	}
	return false
}

// SortedPaths returns a category's pattern paths in lexical order, for
// deterministic serialisation.
func (c Categories) SortedPaths(name CategoryName) []string {
	cat := c[name]
	paths := make([]string, 0, len(cat))
	for p := range cat {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
