package privacy

import (
	"fmt"
	"strings"

	"github.com/raaihank/pii-sentinel/internal/payload"
)

// Category identifies the kind of PII a rule recognizes
type Category string

const (
	CategoryPhone         Category = "PHONE"
	CategoryNationalID    Category = "NATIONAL_ID"
	CategoryPassport      Category = "PASSPORT"
	CategoryPaymentHandle Category = "PAYMENT_HANDLE"
	CategoryName          Category = "NAME"
	CategoryEmail         Category = "EMAIL"
	CategoryAddress       Category = "ADDRESS"
	CategoryNetworkID     Category = "NETWORK_ID"
)

// AllCategories lists every category in rule priority order
var AllCategories = []Category{
	CategoryPhone,
	CategoryNationalID,
	CategoryPassport,
	CategoryPaymentHandle,
	CategoryName,
	CategoryEmail,
	CategoryAddress,
	CategoryNetworkID,
}

// ParseCategory resolves a detector name such as "phone" or "NATIONAL_ID"
func ParseCategory(name string) (Category, error) {
	normalized := Category(strings.ToUpper(strings.TrimSpace(name)))
	for _, c := range AllCategories {
		if c == normalized {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownDetector, name)
}

// Kind tells whether a category is sensitive on its own or only in combination
type Kind string

const (
	// KindStandalone values are PII by themselves
	KindStandalone Kind = "standalone"
	// KindContextual values only count toward the composite rule
	KindContextual Kind = "contextual"
)

// Rule is one entry of the ordered rule table
type Rule struct {
	Category Category
	Kind     Kind
	// Match receives the field name and the trimmed value
	Match func(field, value string) bool
	Mask  func(value string) string
}

// Finding records which rule fired for a field
type Finding struct {
	Field    string   `json:"field"`
	Category Category `json:"category"`
	Kind     Kind     `json:"kind"`
}

// Result is the outcome of classifying one payload
type Result struct {
	Redacted *payload.Payload `json:"redacted"`
	IsPII    bool             `json:"is_pii"`
	Findings []Finding        `json:"findings"`
}
