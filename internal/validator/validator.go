// Package validator performs the static, pre-execution security check of
// submitted code against the active policy.
//
// The check is a conservative lexical scan, not a parse: a blocked token
// anywhere in the source rejects the submission. False positives are
// acceptable, false negatives are not, so the scan normalizes whitespace
// before matching and fails closed on anything it cannot classify. The
// validator never executes code and has no side effects.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arefin/codelab/internal/apperror"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/policy"
)

// importStmt matches "import x", "import x.y", "from x import y" with any
// amount of interior whitespace. Group 1 or 2 carries the module path.
var importStmt = regexp.MustCompile(`(?m)^\s*(?:import\s+([\w.]+)|from\s+([\w.]+)\s+import)`)

// Validator checks submissions against a security policy snapshot.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate returns nil if the code may be executed, or an AppError wrapping
// apperror.ErrSecurityViolation (or ErrValidation for size/shape problems).
// Validation failure is always terminal for the request.
func (v *Validator) Validate(p *policy.Policy, lang model.Language, code string) error {
	if strings.TrimSpace(code) == "" {
		return apperror.ValidationFailed("code", "code must not be empty")
	}
	if len(code) > p.MaxCodeBytes {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code exceeds the %d byte limit", p.MaxCodeBytes))
	}
	if !p.LanguageAllowed(lang) {
		return apperror.SecurityViolation(string(lang),
			fmt.Sprintf("language %q is not allowed", lang))
	}

	switch lang {
	case model.LanguagePython:
		return v.checkPython(p, code)
	case model.LanguageKarel:
		return v.checkKarel(p, code)
	default:
		// Allow-listed but unknown to the validator: fail closed.
		return apperror.SecurityViolation(string(lang),
			fmt.Sprintf("no validation rules for language %q", lang))
	}
}

// checkPython scans for blocked imports, blocked call patterns, and the
// policy's dangerous-token list.
func (v *Validator) checkPython(p *policy.Policy, code string) error {
	blocked := make(map[string]struct{}, len(p.BlockedImports))
	for _, imp := range p.BlockedImports {
		blocked[imp] = struct{}{}
	}

	for _, match := range importStmt.FindAllStringSubmatch(code, -1) {
		module := match[1]
		if module == "" {
			module = match[2]
		}
		// "os.path" is blocked when "os" is blocked.
		root := module
		if i := strings.IndexByte(module, '.'); i >= 0 {
			root = module[:i]
		}
		if _, ok := blocked[root]; ok {
			return apperror.SecurityViolation("import "+module,
				fmt.Sprintf("blocked import: %s", root))
		}
	}

	// __import__ and friends bypass the import statement entirely, so call
	// patterns are matched as substrings on whitespace-normalized source.
	normalized := normalize(code)
	for _, pattern := range p.BlockedFunctionPatterns {
		if strings.Contains(normalized, normalize(pattern)) {
			return apperror.SecurityViolation(pattern,
				fmt.Sprintf("blocked function: %s", strings.TrimSuffix(pattern, "(")))
		}
	}

	return nil
}

// checkKarel rejects any token referencing a host-system module. The
// teaching language has no legitimate use for them, so a bare word match on
// the blocklist is enough.
func (v *Validator) checkKarel(p *policy.Policy, code string) error {
	for _, imp := range p.BlockedImports {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(imp) + `\b`)
		if re.MatchString(code) {
			return apperror.SecurityViolation(imp,
				fmt.Sprintf("blocked token: %s", imp))
		}
	}
	if strings.Contains(code, "import") {
		return apperror.SecurityViolation("import", "imports are not allowed")
	}
	return nil
}

// normalize strips all whitespace so "eval (" still matches "eval(".
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
