/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package matcher

import "strings"

// Expression is a parsed keyword list. Each group is a set of tokens that
// must all appear in the text; any single group matching is enough.
type Expression struct {
	groups [][]string
}

// ParseKeywords builds an Expression from raw keyword entries. Every entry may
// itself hold several comma separated groups, so ["URSSAF, CPAM"] and
// ["URSSAF", "CPAM"] parse to the same expression.
func ParseKeywords(keywords ...string) Expression {
	var expr Expression
	for _, entry := range keywords {
		for _, group := range strings.Split(entry, ",") {
			tokens := strings.Fields(strings.ToLower(group))
			if len(tokens) == 0 {
				continue
			}
			expr.groups = append(expr.groups, tokens)
		}
	}
	return expr
}

// Empty reports whether the expression has no groups.
func (e Expression) Empty() bool {
	return len(e.groups) == 0
}

// Groups returns the parsed groups, lower-cased.
func (e Expression) Groups() [][]string {
	return e.groups
}

// Match reports whether text satisfies the expression. Matching is a
// case-insensitive substring test per token. An empty expression matches
// nothing; wildcard handling belongs to the caller.
func (e Expression) Match(text string) bool {
	text = strings.ToLower(text)
	for _, group := range e.groups {
		if matchesAll(text, group) {
			return true
		}
	}
	return false
}

func matchesAll(text string, tokens []string) bool {
	for _, token := range tokens {
		if !strings.Contains(text, token) {
			return false
		}
	}
	return true
}
