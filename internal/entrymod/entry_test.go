package entrymod

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/majewsky-labs/lloadd/internal/ldaperr"
	"github.com/majewsky-labs/lloadd/internal/schema"
)

func newEntry(attrs ...*Attribute) *Entry {
	return &Entry{DN: "cn=test,dc=example,dc=com", Attributes: attrs}
}

func TestAddValuesAppendsNewValues(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "cn"}, Values: []string{"Alice"}})

	err := AddValues(e, AttributeDescription{Name: "cn"}, []string{"Bob"}, reg)
	require.NoError(t, err)

	attr, _ := e.find("cn")
	require.Equal(t, []string{"Alice", "Bob"}, attr.Values)
}

func TestAddValuesCreatesAttributeWhenMissing(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry()

	err := AddValues(e, AttributeDescription{Name: "mail"}, []string{"a@example.com"}, reg)
	require.NoError(t, err)

	attr, _ := e.find("mail")
	require.NotNil(t, attr)
	require.Equal(t, []string{"a@example.com"}, attr.Values)
}

func TestAddValuesRejectsDuplicateUnderEqualityRule(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "cn"}, Values: []string{"Alice"}})

	err := AddValues(e, AttributeDescription{Name: "cn"}, []string{"alice"}, reg)
	require.Error(t, err)

	ldapErr, ok := ldaperr.As(err)
	require.True(t, ok)
	require.Equal(t, ldaperr.AttributeOrValueExists, ldapErr.Code)
}

func TestDeleteValuesRemovesWholeAttributeWhenNoValuesGiven(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "cn"}, Values: []string{"Alice"}})

	err := DeleteValues(e, AttributeDescription{Name: "cn"}, nil, reg, Options{})
	require.NoError(t, err)

	_, idx := e.find("cn")
	require.Equal(t, -1, idx)
}

func TestDeleteValuesErrorsOnMissingAttributeWithoutPermissive(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry()

	err := DeleteValues(e, AttributeDescription{Name: "cn"}, nil, reg, Options{})
	require.Error(t, err)
}

func TestDeleteValuesPermissiveNoOpOnMissingAttribute(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry()

	err := DeleteValues(e, AttributeDescription{Name: "cn"}, nil, reg, Options{Permissive: true})
	require.NoError(t, err)
}

func TestDeleteValuesPreservesPartialProgressOnLaterFailure(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "cn"}, Values: []string{"Alice", "Bob", "Carol"}})

	err := DeleteValues(e, AttributeDescription{Name: "cn"}, []string{"Alice", "NoSuchValue", "Carol"}, reg, Options{})
	require.Error(t, err)

	attr, _ := e.find("cn")
	require.Equal(t, []string{"Bob", "Carol"}, attr.Values)
}

func TestDeleteValuesAppliesAllRequestedValuesOnFullSuccess(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "cn"}, Values: []string{"Alice", "Bob"}})

	err := DeleteValues(e, AttributeDescription{Name: "cn"}, []string{"Alice", "Bob"}, reg, Options{})
	require.NoError(t, err)

	_, idx := e.find("cn")
	require.Equal(t, -1, idx)
}

func TestReplaceValuesDiscardsExistingAndSetsNew(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "cn"}, Values: []string{"Alice"}})

	err := ReplaceValues(e, AttributeDescription{Name: "cn"}, []string{"Bob", "Carol"}, reg)
	require.NoError(t, err)

	attr, _ := e.find("cn")
	require.Equal(t, []string{"Bob", "Carol"}, attr.Values)
}

func TestReplaceValuesWithEmptyRemovesAttribute(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "cn"}, Values: []string{"Alice"}})

	err := ReplaceValues(e, AttributeDescription{Name: "cn"}, nil, reg)
	require.NoError(t, err)

	_, idx := e.find("cn")
	require.Equal(t, -1, idx)
}

func TestIncrementValuesAddsDeltaToSingleValue(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "uidNumber"}, Values: []string{"1000"}})

	err := IncrementValues(e, AttributeDescription{Name: "uidNumber"}, []string{"5"}, reg)
	require.NoError(t, err)

	attr, _ := e.find("uidNumber")
	require.Equal(t, []string{"1005"}, attr.Values)
}

func TestIncrementValuesAddsDeltaToEveryValue(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "uidNumber"}, Values: []string{"100", "200"}})

	err := IncrementValues(e, AttributeDescription{Name: "uidNumber"}, []string{"5"}, reg)
	require.NoError(t, err)

	attr, _ := e.find("uidNumber")
	require.Equal(t, []string{"105", "205"}, attr.Values)
}

func TestIncrementValuesRejectsOverflow(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "uidNumber"}, Values: []string{"9223372036854775800"}})

	err := IncrementValues(e, AttributeDescription{Name: "uidNumber"}, []string{"100"}, reg)
	require.Error(t, err)

	ldapErr, ok := ldaperr.As(err)
	require.True(t, ok)
	require.Equal(t, ldaperr.ConstraintViolation, ldapErr.Code)
}

func TestIncrementValuesRequiresExistingAttribute(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry()

	err := IncrementValues(e, AttributeDescription{Name: "uidNumber"}, []string{"1"}, reg)
	require.Error(t, err)
}

func TestIncrementValuesNonIntegerSyntaxRejected(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "cn"}, Values: []string{"Alice"}})

	err := IncrementValues(e, AttributeDescription{Name: "cn"}, []string{"1"}, reg)
	require.Error(t, err)

	ldapErr, ok := ldaperr.As(err)
	require.True(t, ok)
	require.Equal(t, ldaperr.ConstraintViolation, ldapErr.Code)
}

func TestIncrementValuesNoOpOnBadOrZeroDelta(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "uidNumber"}, Values: []string{"1000"}})

	err := IncrementValues(e, AttributeDescription{Name: "uidNumber"}, []string{"not-a-number"}, reg)
	require.NoError(t, err)
	attr, _ := e.find("uidNumber")
	require.Equal(t, []string{"1000"}, attr.Values)

	err = IncrementValues(e, AttributeDescription{Name: "uidNumber"}, []string{"0"}, reg)
	require.NoError(t, err)
	attr, _ = e.find("uidNumber")
	require.Equal(t, []string{"1000"}, attr.Values)
}

func TestApplyAppliesModificationsInOrderAndStopsOnFirstError(t *testing.T) {
	reg := schema.NewRegistry()
	e := newEntry(&Attribute{Description: AttributeDescription{Name: "cn"}, Values: []string{"Alice"}})

	mods := []Modification{
		{Op: ModAdd, Attribute: AttributeDescription{Name: "mail"}, Values: []string{"alice@example.com"}},
		{Op: ModAdd, Attribute: AttributeDescription{Name: "cn"}, Values: []string{"Alice"}},
		{Op: ModAdd, Attribute: AttributeDescription{Name: "sn"}, Values: []string{"Smith"}},
	}

	err := Apply(e, mods, reg, Options{})
	require.Error(t, err)

	_, mailIdx := e.find("mail")
	require.NotEqual(t, -1, mailIdx)

	_, snIdx := e.find("sn")
	require.Equal(t, -1, snIdx)
}
