package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	t.Run("AllKeepsPriorityOrder", func(t *testing.T) {
		r, err := NewRegistry([]string{"all"})
		require.NoError(t, err)
		assert.Equal(t, AllCategories, r.Categories())
	})

	t.Run("SubsetKeepsPriorityOrder", func(t *testing.T) {
		r, err := NewRegistry([]string{"network_id", "Email", "PHONE"})
		require.NoError(t, err)
		assert.Equal(t, []Category{CategoryPhone, CategoryEmail, CategoryNetworkID}, r.Categories())
		assert.True(t, r.Enabled(CategoryEmail))
		assert.False(t, r.Enabled(CategoryName))
	})

	t.Run("UnknownDetector", func(t *testing.T) {
		_, err := NewRegistry([]string{"phone", "credit_card"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownDetector)
	})

	t.Run("EmptyDisablesEverything", func(t *testing.T) {
		r, err := NewRegistry(nil)
		require.NoError(t, err)
		assert.Empty(t, r.Rules())
		_, ok := r.Match("phone", "9876543210")
		assert.False(t, ok)
	})

	t.Run("MustNewRegistryPanics", func(t *testing.T) {
		assert.Panics(t, func() { MustNewRegistry("bogus") })
	})
}

func TestRegistryStandalone(t *testing.T) {
	r := MustNewRegistry("all")
	var got []Category
	for _, rule := range r.Standalone() {
		got = append(got, rule.Category)
	}
	assert.Equal(t, []Category{
		CategoryPhone,
		CategoryNationalID,
		CategoryPassport,
		CategoryPaymentHandle,
		CategoryNetworkID,
	}, got)
}

func TestRegistryMatch(t *testing.T) {
	r := MustNewRegistry("all")

	tests := []struct {
		field string
		value string
		want  Category
	}{
		{"phone", "9876543210", CategoryPhone},
		{"name", "9876543210", CategoryPhone},
		{"ip_address", "9876543210", CategoryPhone},
		{"id", "123456789012", CategoryNationalID},
		{"doc", "A1234567", CategoryPassport},
		{"upi", "jane@okaxis", CategoryPaymentHandle},
		{"email", "jane@okaxis", CategoryPaymentHandle},
		{"name", "jane@x.com", CategoryName},
		{"address", "jane@x.com", CategoryEmail},
		{"address", "221B Baker Street", CategoryAddress},
		{"host", "10.1.2.3", CategoryNetworkID},
		{"device_id", "dev-7781", CategoryNetworkID},
	}

	for _, tt := range tests {
		t.Run(tt.field+"="+tt.value, func(t *testing.T) {
			rule, ok := r.Match(tt.field, tt.value)
			require.True(t, ok)
			assert.Equal(t, tt.want, rule.Category)
		})
	}

	_, ok := r.Match("city", "Pune")
	assert.False(t, ok)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" passport ")
	require.NoError(t, err)
	assert.Equal(t, CategoryPassport, c)

	_, err = ParseCategory("ssn")
	assert.ErrorIs(t, err, ErrUnknownDetector)
}
