package auth

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

var (
	reDigit           = regexp.MustCompile(`[0-9]`)
	reUpper           = regexp.MustCompile(`\p{Lu}`)
	reLower           = regexp.MustCompile(`\p{Ll}`)
	reNonAlphanumeric = regexp.MustCompile(`[^\p{L}\p{N}]`)
)

// PasswordPolicy is enforced whenever a password is set. Each
// requirement can be toggled on its own.
type PasswordPolicy struct {
	MinLength              int
	RequireDigit           bool
	RequireUppercase       bool
	RequireLowercase       bool
	RequireNonAlphanumeric bool
}

// DefaultPasswordPolicy requires five characters including a lower case letter
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        5,
		RequireLowercase: true,
	}
}

// Rules returns the ozzo rules for the policy
func (p PasswordPolicy) Rules() []validation.Rule {
	rules := []validation.Rule{validation.Required}
	if p.MinLength > 0 {
		rules = append(rules, validation.RuneLength(p.MinLength, 0).
			Error(fmt.Sprintf("must be at least %d characters long", p.MinLength)))
	}
	if p.RequireDigit {
		rules = append(rules, validation.Match(reDigit).Error("must contain a digit"))
	}
	if p.RequireUppercase {
		rules = append(rules, validation.Match(reUpper).Error("must contain an upper case letter"))
	}
	if p.RequireLowercase {
		rules = append(rules, validation.Match(reLower).Error("must contain a lower case letter"))
	}
	if p.RequireNonAlphanumeric {
		rules = append(rules, validation.Match(reNonAlphanumeric).Error("must contain a non alphanumeric character"))
	}
	return rules
}

// Violations lists every requirement the password fails
func (p PasswordPolicy) Violations(password string) []string {
	var out []string
	for _, rule := range p.Rules() {
		if err := validation.Validate(password, rule); err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}

// Check validates password against the policy. The returned error
// carries one entry per failing requirement.
func (p PasswordPolicy) Check(field, password string) error {
	violations := p.Violations(password)
	if len(violations) == 0 {
		return nil
	}

	return withMeta(ErrPasswordPolicy, map[string]any{
		field: violations,
	})
}
