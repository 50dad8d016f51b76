/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vasayxtx/go-glob"
)

// RouteScopeRule maps request routes to an action scope.
type RouteScopeRule struct {
	// Scope is the action scope assigned to matching requests.
	Scope string

	// Methods restricts the rule to the listed HTTP methods. Empty means all methods.
	Methods []string

	// PathPatterns are glob patterns matched against the request URL path,
	// e.g. "/login", "/api/v1/*".
	PathPatterns []string
}

type compiledRouteScopeRule struct {
	scope    string
	methods  map[string]struct{}
	matchers []func(s string) bool
}

// RouteScopeMatcher selects an action scope for a request by matching its method
// and URL path against an ordered list of rules. The first matching rule wins,
// requests matching no rule get the default scope.
type RouteScopeMatcher struct {
	rules        []compiledRouteScopeRule
	defaultScope string
}

// NewRouteScopeMatcher creates a new matcher from the passed rules.
// DefaultScope is used if defaultScope is empty.
func NewRouteScopeMatcher(rules []RouteScopeRule, defaultScope string) (*RouteScopeMatcher, error) {
	if defaultScope == "" {
		defaultScope = DefaultScope
	}
	compiledRules := make([]compiledRouteScopeRule, 0, len(rules))
	for i, rule := range rules {
		if rule.Scope == "" {
			return nil, fmt.Errorf("rule #%d: scope must not be empty", i)
		}
		if len(rule.PathPatterns) == 0 {
			return nil, fmt.Errorf("rule #%d: at least one path pattern is required", i)
		}
		compiled := compiledRouteScopeRule{scope: rule.Scope}
		if len(rule.Methods) != 0 {
			compiled.methods = make(map[string]struct{}, len(rule.Methods))
			for _, m := range rule.Methods {
				compiled.methods[strings.ToUpper(m)] = struct{}{}
			}
		}
		for _, pattern := range rule.PathPatterns {
			compiled.matchers = append(compiled.matchers, glob.Compile(pattern))
		}
		compiledRules = append(compiledRules, compiled)
	}
	return &RouteScopeMatcher{rules: compiledRules, defaultScope: defaultScope}, nil
}

// GetScope implements GetScopeFunc.
func (m *RouteScopeMatcher) GetScope(r *http.Request) string {
	for i := range m.rules {
		rule := &m.rules[i]
		if rule.methods != nil {
			if _, ok := rule.methods[r.Method]; !ok {
				continue
			}
		}
		for _, match := range rule.matchers {
			if match(r.URL.Path) {
				return rule.scope
			}
		}
	}
	return m.defaultScope
}
