package privacy

import (
	"regexp"
	"strings"
	"unicode"
)

// Fixed mask tokens
const (
	RedactedToken     = "[REDACTED_PII]"
	PaymentHandleMask = "XXX@upi"
	EmailFallbackMask = "XXX@domain.com"
)

const (
	nameFiller       = "XXX"
	phoneFiller      = "XXXXXX"
	nationalIDPrefix = "XXXX XXXX "
	passportFiller   = "XXXXXXX"
	emailLocalFiller = "XXX@"

	nameField      = "name"
	addressField   = "address"
	deviceIDField  = "device_id"
	ipAddressField = "ip_address"

	emailVisibleLocal     = 2
	phoneVisibleEdge      = 2
	nationalIDVisibleTail = 4
)

// Digit and word classes are Unicode aware: \p{Nd} is any decimal digit.
var (
	phonePattern         = regexp.MustCompile(`^\p{Nd}{10}$`)
	nationalIDPattern    = regexp.MustCompile(`^\p{Nd}{12}$`)
	passportPattern      = regexp.MustCompile(`^[A-PR-WYa-pr-wy][1-9]\p{Nd}{6}$`)
	paymentHandlePattern = regexp.MustCompile(`^[\p{L}\p{N}_.-]+@[A-Za-z]+$`)
	ipv4Pattern          = regexp.MustCompile(`^(?:\p{Nd}{1,3}\.){3}\p{Nd}{1,3}$`)

	// Start anchored only: trailing text after the TLD still counts. The
	// negated class excludes every rune isSpace accepts.
	emailPattern = regexp.MustCompile(`^[^@` + spaceClass + `]+@[^@` + spaceClass + `]+\.[^@` + spaceClass + `]+`)
)

// spaceClass lists the runes isSpace accepts, for use inside a character class
const spaceClass = `\t\n\x0b\f\r\x1c-\x1f\x85\p{Z}`

// isSpace reports Unicode whitespace plus the ASCII information separators
// U+001C..U+001F.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// trimValue strips the whitespace isSpace accepts from both ends
func trimValue(value string) string {
	return strings.TrimFunc(value, isSpace)
}

// DefaultRules returns the full rule table in evaluation order. The first
// matching rule wins for each field.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: CategoryPhone,
			Kind:     KindStandalone,
			Match:    valueMatches(phonePattern),
			Mask:     MaskPhone,
		},
		{
			Category: CategoryNationalID,
			Kind:     KindStandalone,
			Match:    valueMatches(nationalIDPattern),
			Mask:     MaskNationalID,
		},
		{
			Category: CategoryPassport,
			Kind:     KindStandalone,
			Match:    valueMatches(passportPattern),
			Mask:     MaskPassport,
		},
		{
			Category: CategoryPaymentHandle,
			Kind:     KindStandalone,
			Match:    valueMatches(paymentHandlePattern),
			Mask:     MaskPaymentHandle,
		},
		{
			Category: CategoryName,
			Kind:     KindContextual,
			Match:    fieldIs(nameField),
			Mask:     MaskName,
		},
		{
			Category: CategoryEmail,
			Kind:     KindContextual,
			Match:    valueMatches(emailPattern),
			Mask:     MaskEmail,
		},
		{
			Category: CategoryAddress,
			Kind:     KindContextual,
			Match:    fieldIs(addressField),
			Mask:     Redact,
		},
		{
			Category: CategoryNetworkID,
			Kind:     KindStandalone,
			Match:    isNetworkID,
			Mask:     Redact,
		},
	}
}

func valueMatches(re *regexp.Regexp) func(field, value string) bool {
	return func(_, value string) bool {
		return re.MatchString(value)
	}
}

func fieldIs(name string) func(field, value string) bool {
	return func(field, _ string) bool {
		return field == name
	}
}

// isNetworkID accepts an IPv4-shaped value or any value under a device/IP field
func isNetworkID(field, value string) bool {
	return ipv4Pattern.MatchString(value) || field == deviceIDField || field == ipAddressField
}

// MaskPhone keeps the first and last two digits
func MaskPhone(value string) string {
	digits := []rune(value)
	if len(digits) < 2*phoneVisibleEdge {
		return Redact(value)
	}
	return string(digits[:phoneVisibleEdge]) + phoneFiller + string(digits[len(digits)-phoneVisibleEdge:])
}

// MaskNationalID keeps the last four digits
func MaskNationalID(value string) string {
	digits := []rune(value)
	if len(digits) < nationalIDVisibleTail {
		return Redact(value)
	}
	return nationalIDPrefix + string(digits[len(digits)-nationalIDVisibleTail:])
}

// MaskPassport keeps the leading letter
func MaskPassport(value string) string {
	runes := []rune(value)
	if len(runes) == 0 {
		return Redact(value)
	}
	return string(runes[:1]) + passportFiller
}

// MaskPaymentHandle replaces the whole handle with a constant
func MaskPaymentHandle(string) string {
	return PaymentHandleMask
}

// MaskName masks every whitespace separated token longer than one character
func MaskName(value string) string {
	parts := strings.FieldsFunc(value, isSpace)
	masked := make([]string, 0, len(parts))
	for _, p := range parts {
		runes := []rune(p)
		if len(runes) > 1 {
			masked = append(masked, string(runes[0])+nameFiller)
		} else {
			masked = append(masked, p)
		}
	}
	return strings.Join(masked, " ")
}

// MaskEmail keeps two characters of the local part and the whole domain
func MaskEmail(value string) string {
	parts := strings.Split(value, "@")
	if len(parts) != 2 {
		return EmailFallbackMask
	}

	local := []rune(parts[0])
	if len(local) > emailVisibleLocal {
		local = local[:emailVisibleLocal]
	}
	return string(local) + emailLocalFiller + parts[1]
}

// Redact replaces the value with the fixed redaction token
func Redact(string) string {
	return RedactedToken
}
