// Package entrymod implements the entry-modification primitives used by
// the directory server's Modify operation: Add, Delete, Replace and
// Increment, each built against a schema.MatchingRuleRegistry so
// duplicate and value-presence checks use the correct equality rule per
// attribute. The algorithms are ported in spirit from OpenLDAP slapd's
// mods.c (modify_add_values / modify_delete_values /
// modify_replace_values / modify_increment_values).
package entrymod

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/majewsky-labs/lloadd/internal/ldaperr"
	"github.com/majewsky-labs/lloadd/internal/schema"
)

// AttributeDescription names an attribute type. Options (e.g.
// "cn;lang-en") are deliberately not modeled, matching this server's
// Non-goal of full RFC 4512 attribute option support.
type AttributeDescription struct {
	Name string
}

// Attribute is one named, multi-valued attribute on an Entry.
type Attribute struct {
	Description AttributeDescription
	Values      []string
}

// Entry is the richer attribute-description-keyed representation the
// modification engine operates on. internal/server converts to and from
// the wire-facing models.Entry at the Modify request boundary.
type Entry struct {
	DN         string
	Attributes []*Attribute
}

// find returns the attribute with the given name (case-insensitive, per
// RFC 4512 attribute type name matching) and its index, or (nil, -1).
func (e *Entry) find(name string) (*Attribute, int) {
	for i, a := range e.Attributes {
		if strings.EqualFold(a.Description.Name, name) {
			return a, i
		}
	}
	return nil, -1
}

// removeAt deletes the attribute at index i, preserving the order of
// the rest.
func (e *Entry) removeAt(i int) {
	e.Attributes = append(e.Attributes[:i], e.Attributes[i+1:]...)
}

// ModOp identifies which of the four modification primitives a
// Modification requests, matching RFC 4511's ModifyRequest.modification
// operation enum.
type ModOp int

const (
	ModAdd ModOp = iota
	ModDelete
	ModReplace
	ModIncrement
)

// Modification is one entry in a ModifyRequest's list of changes.
type Modification struct {
	Op        ModOp
	Attribute AttributeDescription
	Values    []string
}

// Options controls modification semantics that are not simply a
// function of the modification itself.
type Options struct {
	// Permissive, when true, turns a Delete naming a value or attribute
	// the entry does not have into a no-op instead of an error, per the
	// permissive modify control (OpenLDAP's LDAP_CONTROL_X_PERMISSIVE_MODIFY).
	Permissive bool
}

// Apply runs each Modification against entry in order, stopping at the
// first error. Modifications applied before the failing one are kept in
// effect: RFC 4511 section 4.6 requires the server to apply changes
// atomically per-request, but this proxy-adjacent engine mirrors
// OpenLDAP's own slapd behavior of surfacing the first failure while
// leaving prior successful changes (and any partial tombstone/compact
// progress within the failing modification itself) in place; callers
// needing strict all-or-nothing semantics must snapshot and restore the
// Entry themselves.
func Apply(entry *Entry, mods []Modification, registry schema.MatchingRuleRegistry, opts Options) error {
	for i, mod := range mods {
		var err error
		switch mod.Op {
		case ModAdd:
			err = AddValues(entry, mod.Attribute, mod.Values, registry)
		case ModDelete:
			err = DeleteValues(entry, mod.Attribute, mod.Values, registry, opts)
		case ModReplace:
			err = ReplaceValues(entry, mod.Attribute, mod.Values, registry)
		case ModIncrement:
			err = IncrementValues(entry, mod.Attribute, mod.Values, registry)
		default:
			err = ldaperr.New(ldaperr.ProtocolError, "unknown modification operation %d", mod.Op)
		}
		if err != nil {
			return fmt.Errorf("modification %d (%s): %w", i, mod.Attribute.Name, err)
		}
	}
	return nil
}

// AddValues implements the Add primitive: each value in values is
// appended to the named attribute unless an equal value (per the
// attribute's registered equality rule) is already present, in which
// case the whole modification fails with AttributeOrValueExists — mods.c
// modify_add_values's value_find-before-attr_merge check. An attribute
// with no registered equality rule cannot be added to, mirroring mods.c's
// treatment of mr == NULL as undefinedAttributeType.
func AddValues(entry *Entry, desc AttributeDescription, values []string, registry schema.MatchingRuleRegistry) error {
	rule, ok := registry.EqualityRule(desc.Name)
	if !ok {
		return ldaperr.Wrap(ldaperr.UndefinedAttrType, ldaperr.ErrMatchUnavailable, "attribute %q has no equality matching rule", desc.Name)
	}

	attr, _ := entry.find(desc.Name)
	var merged []string
	if attr != nil {
		merged = append(merged, attr.Values...)
	}

	for _, v := range values {
		for _, existing := range merged {
			if rule.Equal(existing, v) {
				return ldaperr.New(ldaperr.AttributeOrValueExists, "value %q already exists in attribute %q", v, desc.Name)
			}
		}
		merged = append(merged, v)
	}

	if attr == nil {
		attr = &Attribute{Description: desc}
		entry.Attributes = append(entry.Attributes, attr)
	}
	attr.Values = merged
	return nil
}

// DeleteValues implements the Delete primitive. With no values given,
// the whole attribute is removed; it must currently exist unless
// opts.Permissive is set. With values given, each one is matched and
// tombstoned (removed in place) before the attribute is compacted;
// values matched before a later failure stay removed (mods.c's
// tombstone-then-compact algorithm), and if every value has been
// removed the now-empty attribute is dropped entirely.
func DeleteValues(entry *Entry, desc AttributeDescription, values []string, registry schema.MatchingRuleRegistry, opts Options) error {
	attr, idx := entry.find(desc.Name)

	if len(values) == 0 {
		if attr == nil {
			if opts.Permissive {
				return nil
			}
			return ldaperr.Wrap(ldaperr.NoSuchAttribute, ldaperr.ErrNoSuchAttribute, "attribute %q does not exist", desc.Name)
		}
		entry.removeAt(idx)
		return nil
	}

	if attr == nil {
		if opts.Permissive {
			return nil
		}
		return ldaperr.Wrap(ldaperr.NoSuchAttribute, ldaperr.ErrNoSuchAttribute, "attribute %q does not exist", desc.Name)
	}

	rule, ok := registry.EqualityRule(desc.Name)
	if !ok {
		return ldaperr.Wrap(ldaperr.UndefinedAttrType, ldaperr.ErrMatchUnavailable, "attribute %q has no equality matching rule", desc.Name)
	}

	var firstMissing error
	for _, v := range values {
		removed := false
		for i, existing := range attr.Values {
			if existing == "" {
				continue // already tombstoned by an earlier value in this same call
			}
			if rule.Equal(existing, v) {
				attr.Values[i] = ""
				removed = true
				break
			}
		}
		if !removed && firstMissing == nil {
			if opts.Permissive {
				continue
			}
			firstMissing = ldaperr.Wrap(ldaperr.NoSuchAttribute, ldaperr.ErrNoSuchValue, "value %q not found in attribute %q", v, desc.Name)
			break
		}
	}

	compacted := attr.Values[:0]
	for _, v := range attr.Values {
		if v != "" {
			compacted = append(compacted, v)
		}
	}
	attr.Values = compacted

	if len(attr.Values) == 0 {
		entry.removeAt(idx)
	}

	return firstMissing
}

// ReplaceValues implements the Replace primitive: the named attribute's
// current values (if any) are discarded and, if values is non-empty,
// replaced wholesale. mods.c's modify_replace_values does this via
// attr_delete followed by an unchecked attr_merge; no duplicate check
// applies to the new values here because they start from an empty
// attribute, but duplicates within values itself are still rejected so
// a Replace can't silently create a multi-valued duplicate.
func ReplaceValues(entry *Entry, desc AttributeDescription, values []string, registry schema.MatchingRuleRegistry) error {
	if _, idx := entry.find(desc.Name); idx >= 0 {
		entry.removeAt(idx)
	}
	if len(values) == 0 {
		return nil
	}
	return AddValues(entry, desc, values, registry)
}

// IncrementValues implements the Increment primitive (RFC 4525): the
// named attribute must have integer syntax, and every existing
// normalized value is parsed and incremented by the single signed
// decimal delta in values (mods.c:316 loops a->a_nvals the same way, so
// a multi-valued attribute like uidNumber=[100,200] incremented by 5
// becomes [105,205]). Per mods.c:311-314, a delta that fails to parse or
// equals zero is a no-op returning success rather than an error. An
// overflow of int64 surfaces as ConstraintViolation rather than
// wrapping, since slapd has no defined wraparound behavior for this
// case.
func IncrementValues(entry *Entry, desc AttributeDescription, values []string, registry schema.MatchingRuleRegistry) error {
	attr, _ := entry.find(desc.Name)
	if attr == nil {
		return ldaperr.Wrap(ldaperr.NoSuchAttribute, ldaperr.ErrNoSuchAttribute, "attribute %q not present", desc.Name)
	}

	if rule, ok := registry.EqualityRule(desc.Name); !ok || rule.Name() != "integerMatch" {
		return ldaperr.New(ldaperr.ConstraintViolation, "attribute %q does not have integer syntax", desc.Name)
	}

	if len(values) != 1 {
		return nil
	}
	delta, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
	if err != nil || delta == 0 {
		return nil
	}

	for i, v := range attr.Values {
		current, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return ldaperr.Wrap(ldaperr.InvalidAttributeSyntax, err, "attribute %q value %q is not an integer", desc.Name, v)
		}
		sum := current + delta
		if (delta > 0 && sum < current) || (delta < 0 && sum > current) {
			return ldaperr.New(ldaperr.ConstraintViolation, "incrementing %q by %d would overflow", desc.Name, delta)
		}
		attr.Values[i] = strconv.FormatInt(sum, 10)
	}
	return nil
}
