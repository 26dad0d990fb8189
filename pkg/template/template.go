// Package template resolves {placeholder} tokens in campaign message templates.
package template

import (
	"regexp"
)

var (
	tokenPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Built-in variables every recipient provides.
const (
	VarName        = "name"
	VarEmail       = "email"
	VarPhoneNumber = "phone_number"
)

var builtins = map[string]struct{}{
	VarName:        {},
	VarEmail:       {},
	VarPhoneNumber: {},
}

// ValidName reports whether name can appear as a {placeholder}.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Render replaces every {token} that has a value in vars. Unknown tokens are
// left verbatim. Substituted values are not rescanned.
func Render(tpl string, vars map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(tpl, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}

// Variables lists the placeholders in tpl in order of first appearance.
func Variables(tpl string) []string {
	matches := tokenPattern.FindAllStringSubmatch(tpl, -1)
	seen := make(map[string]struct{}, len(matches))
	vars := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		vars = append(vars, m[1])
	}
	return vars
}

// Missing returns the entries of declared that vars has no value for.
func Missing(declared []string, vars map[string]string) []string {
	var missing []string
	for _, name := range declared {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Undeclared returns placeholders used in tpl that are neither declared nor
// built in.
func Undeclared(tpl string, declared []string) []string {
	allowed := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		allowed[d] = struct{}{}
	}

	var undeclared []string
	for _, v := range Variables(tpl) {
		if _, ok := builtins[v]; ok {
			continue
		}
		if _, ok := allowed[v]; !ok {
			undeclared = append(undeclared, v)
		}
	}
	return undeclared
}

// ResolveVars merges campaign defaults with a recipient's own values.
// Recipient keys win over defaults.
func ResolveVars(defaults map[string]string, phone string, name, email *string, custom map[string]string) map[string]string {
	vars := make(map[string]string, len(defaults)+len(custom)+3)
	for k, v := range defaults {
		vars[k] = v
	}
	for k, v := range custom {
		vars[k] = v
	}
	if phone != "" {
		vars[VarPhoneNumber] = phone
	}
	if name != nil && *name != "" {
		vars[VarName] = *name
	}
	if email != nil && *email != "" {
		vars[VarEmail] = *email
	}
	return vars
}
