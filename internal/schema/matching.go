package schema

import (
	"strconv"
	"strings"
)

// MatchingRule compares two attribute values for equality under a named
// matching rule (RFC 4517). The entry modification engine uses this to
// decide whether a value being added already exists (duplicate
// detection) or whether a value named in a Delete modification is
// actually present, mirroring OpenLDAP mods.c's value_match calls.
type MatchingRule interface {
	// Name is the matching rule's short name, e.g. "caseIgnoreMatch".
	Name() string

	// Equal reports whether a and b are equal under this rule.
	Equal(a, b string) bool
}

// caseIgnoreMatch implements RFC 4517's caseIgnoreMatch: values are
// compared after folding case and collapsing insignificant whitespace,
// the default equality rule for most directory string attributes.
type caseIgnoreMatch struct{}

func (caseIgnoreMatch) Name() string { return "caseIgnoreMatch" }

func (caseIgnoreMatch) Equal(a, b string) bool {
	return normalizeSpace(strings.ToLower(a)) == normalizeSpace(strings.ToLower(b))
}

// caseExactMatch implements RFC 4517's caseExactMatch: whitespace is
// still collapsed, but case is significant.
type caseExactMatch struct{}

func (caseExactMatch) Name() string { return "caseExactMatch" }

func (caseExactMatch) Equal(a, b string) bool {
	return normalizeSpace(a) == normalizeSpace(b)
}

// integerMatch implements RFC 4517's integerMatch: values are compared
// as parsed integers so that "01" and "1" are equal, the equality rule
// used for uidNumber/gidNumber and hence required for Increment.
type integerMatch struct{}

func (integerMatch) Name() string { return "integerMatch" }

func (integerMatch) Equal(a, b string) bool {
	ai, aerr := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	bi, berr := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if aerr != nil || berr != nil {
		return a == b
	}
	return ai == bi
}

// distinguishedNameMatch implements a simplified RFC 4517
// distinguishedNameMatch: DN string values compare equal ignoring case
// and insignificant space around the RDN separators.
type distinguishedNameMatch struct{}

func (distinguishedNameMatch) Name() string { return "distinguishedNameMatch" }

func (distinguishedNameMatch) Equal(a, b string) bool {
	return normalizeDN(a) == normalizeDN(b)
}

func normalizeSpace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func normalizeDN(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = normalizeSpace(strings.ToLower(strings.TrimSpace(p)))
	}
	return strings.Join(parts, ",")
}

// MatchingRuleRegistry resolves the equality matching rule that applies
// to a given attribute description, so the entry modification engine
// never has to hardcode per-attribute comparison logic.
type MatchingRuleRegistry interface {
	// EqualityRule returns the matching rule to use for attribute, and
	// whether one is registered. A false return corresponds to
	// OpenLDAP's ad_get_tags / mr == NULL case in modify_add_values,
	// which rejects the modification with undefinedAttributeType.
	EqualityRule(attribute string) (MatchingRule, bool)
}

// Registry is the default MatchingRuleRegistry, seeded with the
// equality rules for the attribute set this server understands. It is
// safe for concurrent read access after construction; it is never
// mutated after NewRegistry returns.
type Registry struct {
	byAttribute map[string]MatchingRule
	fallback    MatchingRule
}

// NewRegistry builds the default schema used by the directory and proxy
// servers: integer attributes use integerMatch (required for
// Increment), DN-valued attributes use distinguishedNameMatch,
// userPassword (and cn_exact) use caseExactMatch, and everything else
// defaults to caseIgnoreMatch, the common case for directory string
// syntaxes per RFC 4517.
func NewRegistry() *Registry {
	r := &Registry{
		byAttribute: make(map[string]MatchingRule),
		fallback:    caseIgnoreMatch{},
	}

	integer := integerMatch{}
	for _, attr := range []string{"uidNumber", "gidNumber", "loginShift", "shadowLastChange", "shadowMax", "shadowMin", "shadowWarning"} {
		r.byAttribute[strings.ToLower(attr)] = integer
	}

	dn := distinguishedNameMatch{}
	for _, attr := range []string{"member", "memberOf", "manager", "secretary", "seeAlso", "distinguishedName"} {
		r.byAttribute[strings.ToLower(attr)] = dn
	}

	exact := caseExactMatch{}
	for _, attr := range []string{"userPassword", "cn_exact"} {
		r.byAttribute[strings.ToLower(attr)] = exact
	}

	return r
}

// EqualityRule implements MatchingRuleRegistry.
func (r *Registry) EqualityRule(attribute string) (MatchingRule, bool) {
	if rule, ok := r.byAttribute[strings.ToLower(attribute)]; ok {
		return rule, true
	}
	if r.fallback == nil {
		return nil, false
	}
	return r.fallback, true
}
