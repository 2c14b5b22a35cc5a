package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaseIgnoreMatchFoldsCaseAndSpace(t *testing.T) {
	m := caseIgnoreMatch{}
	require.True(t, m.Equal("John  Smith", "john smith"))
	require.False(t, m.Equal("John Smith", "Jane Smith"))
}

func TestCaseExactMatchIsCaseSensitive(t *testing.T) {
	m := caseExactMatch{}
	require.True(t, m.Equal("John Smith", "John Smith"))
	require.False(t, m.Equal("John Smith", "john smith"))
}

func TestIntegerMatchComparesNumerically(t *testing.T) {
	m := integerMatch{}
	require.True(t, m.Equal("01", "1"))
	require.True(t, m.Equal("-5", "-5"))
	require.False(t, m.Equal("5", "6"))
}

func TestIntegerMatchFallsBackToStringEqualityOnParseFailure(t *testing.T) {
	m := integerMatch{}
	require.True(t, m.Equal("abc", "abc"))
	require.False(t, m.Equal("abc", "1"))
}

func TestDistinguishedNameMatchIgnoresCaseAndSpacing(t *testing.T) {
	m := distinguishedNameMatch{}
	require.True(t, m.Equal("CN=Bob, OU=People,DC=example,DC=com", "cn=bob,ou=people,dc=example,dc=com"))
}

func TestRegistryResolvesIntegerMatchForNumericAttributes(t *testing.T) {
	r := NewRegistry()
	rule, ok := r.EqualityRule("uidNumber")
	require.True(t, ok)
	require.Equal(t, "integerMatch", rule.Name())
}

func TestRegistryResolvesDNMatchForDNAttributes(t *testing.T) {
	r := NewRegistry()
	rule, ok := r.EqualityRule("member")
	require.True(t, ok)
	require.Equal(t, "distinguishedNameMatch", rule.Name())
}

func TestRegistryDefaultsToCaseIgnoreMatch(t *testing.T) {
	r := NewRegistry()
	rule, ok := r.EqualityRule("description")
	require.True(t, ok)
	require.Equal(t, "caseIgnoreMatch", rule.Name())
}
