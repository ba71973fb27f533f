package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern func(string) bool
		accept  []string
		reject  []string
	}{
		{
			name:    "phone",
			pattern: phonePattern.MatchString,
			accept:  []string{"9876543210", "0000000000", "٠١٢٣٤٥٦٧٨٩", "९८७६५४३२१०"},
			reject:  []string{"987654321", "98765432101", "98765 43210", "+919876543210", "987654321a"},
		},
		{
			name:    "national id",
			pattern: nationalIDPattern.MatchString,
			accept:  []string{"123456789012"},
			reject:  []string{"12345678901", "1234567890123", "1234 5678 9012"},
		},
		{
			name:    "passport",
			pattern: passportPattern.MatchString,
			accept:  []string{"A1234567", "p9876543", "Y1000000", "w1234567"},
			reject:  []string{"Q1234567", "X1234567", "Z1234567", "q1234567", "x1234567", "z1234567", "A0234567", "A123456", "A12345678", "AB234567"},
		},
		{
			name:    "payment handle",
			pattern: paymentHandlePattern.MatchString,
			accept:  []string{"user@upi", "john.doe-99@okaxis", "a_b@ybl", "josé@upi"},
			reject:  []string{"user@ok1", "user@x.com", "@upi", "user@", "us er@upi"},
		},
		{
			name:    "ipv4",
			pattern: ipv4Pattern.MatchString,
			accept:  []string{"192.168.1.1", "999.999.999.999", "0.0.0.0"},
			reject:  []string{"1.2.3", "1.2.3.4.5", "1234.1.1.1", "a.b.c.d"},
		},
		{
			name:    "email",
			pattern: emailPattern.MatchString,
			accept:  []string{"jane@x.com", "jane.doe@mail.example.org", "a@b.c trailing"},
			reject:  []string{"jane@xcom", "jane x@y.com", "@x.com", "jane@@x.com", "a\u00a0b@c.d", "a\u2003b@c.d", "a\x1cb@c.d", "a@b\u3000c.d", "a@b.\u0085c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range tt.accept {
				assert.True(t, tt.pattern(v), "expected %q to match", v)
			}
			for _, v := range tt.reject {
				assert.False(t, tt.pattern(v), "expected %q not to match", v)
			}
		})
	}
}

func TestMasks(t *testing.T) {
	assert.Equal(t, "98XXXXXX10", MaskPhone("9876543210"))
	assert.Equal(t, "XXXX XXXX 9012", MaskNationalID("123456789012"))
	assert.Equal(t, "AXXXXXXX", MaskPassport("A1234567"))
	assert.Equal(t, "XXX@upi", MaskPaymentHandle("someone@okhdfc"))
	assert.Equal(t, RedactedToken, Redact("221B Baker Street"))

	t.Run("Name", func(t *testing.T) {
		assert.Equal(t, "JXXX SXXX", MaskName("John Smith"))
		assert.Equal(t, "JXXX A SXXX", MaskName("John A Smith"))
		assert.Equal(t, "JXXX SXXX", MaskName("John\t  Smith"))
		assert.Equal(t, "ÉXXX ZXXX", MaskName("Émile Zola"))
		assert.Equal(t, "", MaskName(""))
	})

	t.Run("Email", func(t *testing.T) {
		assert.Equal(t, "jaXXX@x.com", MaskEmail("jane.doe@x.com"))
		assert.Equal(t, "aXXX@b.co", MaskEmail("a@b.co"))
		assert.Equal(t, EmailFallbackMask, MaskEmail("a@b.c @d"))
		assert.Equal(t, EmailFallbackMask, MaskEmail("no-at-sign"))
	})

	t.Run("UnicodeDigitsAreCountedByRune", func(t *testing.T) {
		assert.Equal(t, "٠١XXXXXX٨٩", MaskPhone("٠١٢٣٤٥٦٧٨٩"))
		assert.Equal(t, "XXXX XXXX ९०१२", MaskNationalID("१२३४५६७८९०१२"))
	})

	t.Run("NameSplitsOnUnicodeSpace", func(t *testing.T) {
		assert.Equal(t, "JXXX SXXX", MaskName("John\u00a0Smith"))
		assert.Equal(t, "JXXX SXXX", MaskName("John\x1fSmith"))
	})

	t.Run("ShortInputsNeverPanic", func(t *testing.T) {
		assert.Equal(t, RedactedToken, MaskPhone("1"))
		assert.Equal(t, RedactedToken, MaskNationalID("12"))
		assert.Equal(t, RedactedToken, MaskPassport(""))
	})
}

func TestIsNetworkID(t *testing.T) {
	assert.True(t, isNetworkID("server", "10.0.0.1"))
	assert.True(t, isNetworkID("device_id", "anything-at-all"))
	assert.True(t, isNetworkID("ip_address", "not an ip"))
	assert.False(t, isNetworkID("device", "abc"))
	assert.False(t, isNetworkID("IP_ADDRESS", "abc"))
}
