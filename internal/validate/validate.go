// Package validate implements the field validation pipeline for
// registration and login input: structural checks, reserved names,
// DNS/MX domain verification, and breached-password lookup.
package validate

import (
	"context"
	"errors"
	"net"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nyaruka/phonenumbers"
	"github.com/sssdapp/commerce-api/internal/breach"
	"github.com/sssdapp/commerce-api/internal/tld"
)

// reservedNames are usernames that can never be registered.
var reservedNames = []string{"admin", "root", "superuser"}

// ErrBreachUnavailable marks a password rejected only because the
// breach database could not be reached under a fail-closed policy.
var ErrBreachUnavailable = errors.New("Password could not be verified against the breach database.")

// MXResolver looks up mail-exchanger records for a domain.
type MXResolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

// BreachChecker reports whether a password is known-compromised.
type BreachChecker interface {
	Check(ctx context.Context, password string) (breach.Outcome, error)
}

// Validator runs field checks with injected collaborators so tests can
// substitute fakes for DNS and the breach API.
type Validator struct {
	resolver MXResolver
	breach   BreachChecker
	tlds     *tld.Store
	failOpen bool
}

// New constructs a Validator. failOpen controls how an unreachable
// breach database is treated: true accepts the password, false rejects
// it with ErrBreachUnavailable.
func New(resolver MXResolver, breachChecker BreachChecker, tlds *tld.Store, failOpen bool) *Validator {
	return &Validator{
		resolver: resolver,
		breach:   breachChecker,
		tlds:     tlds,
		failOpen: failOpen,
	}
}

// Identifier accepts a login identifier that is structurally a valid
// email address or a valid username.
func (v *Validator) Identifier(s string) error {
	if EmailStructure(s) == nil && v.emailTLD(s) == nil {
		return nil
	}
	if v.Username(s) == nil {
		return nil
	}
	return errors.New("Invalid identifier. It must be either a valid email or a valid username.")
}

// Username checks length, charset, and the reserved-name list.
func (v *Validator) Username(s string) error {
	if utf8.RuneCountInString(s) < 3 {
		return errors.New("Username must be at least 3 characters long.")
	}
	if !isAlphanumeric(s) {
		return errors.New("Username must contain only alphanumeric characters.")
	}
	lower := strings.ToLower(s)
	for _, reserved := range reservedNames {
		if lower == reserved {
			return errors.New("Username is reserved.")
		}
	}
	return nil
}

// FullName checks length and restricts the charset to letters and
// whitespace.
func (v *Validator) FullName(s string) error {
	length := utf8.RuneCountInString(s)
	if length < 3 {
		return errors.New("Full name must be at least 3 characters long.")
	}
	if length > 100 {
		return errors.New("Full name must be at most 100 characters long.")
	}
	for _, r := range s {
		if !isASCIILetter(r) && r != ' ' && r != '\t' {
			return errors.New("Full name must contain only letters and spaces.")
		}
	}
	return nil
}

// Password checks length and structure, then consults the breach
// database. An unreachable breach API follows the configured
// fail-open/fail-closed policy rather than silently passing.
func (v *Validator) Password(ctx context.Context, s string) error {
	if err := PasswordShape(s); err != nil {
		return err
	}

	if v == nil || v.breach == nil {
		return nil
	}
	outcome, errCheck := v.breach.Check(ctx, s)
	if errCheck != nil {
		if v.failOpen {
			return nil
		}
		return ErrBreachUnavailable
	}
	if outcome == breach.OutcomeCompromised {
		return errors.New("Password has been compromised.")
	}
	return nil
}

// PasswordShape checks length bounds and structure without touching
// the breach database. Login uses it so a stored password that
// later appeared in a breach dump does not lock the account out.
func PasswordShape(s string) error {
	length := utf8.RuneCountInString(s)
	if length < 8 {
		return errors.New("Password must be at least 8 characters long.")
	}
	if length > 30 {
		return errors.New("Password must be at most 30 characters long.")
	}
	return PasswordStructure(s)
}

// PasswordStructure checks complexity alone: at least one lowercase
// letter, one uppercase letter, one digit, one symbol, and no
// whitespace.
func PasswordStructure(s string) error {
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			return errStructure
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case r != '_':
			hasSymbol = true
		}
	}
	if !hasLower || !hasUpper || !hasDigit || !hasSymbol {
		return errStructure
	}
	return nil
}

var errStructure = errors.New("Password must contain at least one lowercase letter, one uppercase letter, one digit, one symbol, and no spaces.")

// Email checks address structure, the TLD allow-list, and that the
// domain resolves an MX record.
func (v *Validator) Email(ctx context.Context, s string) error {
	if err := EmailStructure(s); err != nil {
		return err
	}
	if err := v.emailTLD(s); err != nil {
		return err
	}

	if v == nil || v.resolver == nil {
		return nil
	}
	_, domain, _ := strings.Cut(s, "@")
	records, errLookup := v.resolver.LookupMX(ctx, domain)
	if errLookup != nil || len(records) == 0 {
		return errors.New("Invalid domain.")
	}
	return nil
}

// EmailStructure checks that s parses as a bare address with a dotted
// domain.
func EmailStructure(s string) error {
	addr, errParse := mail.ParseAddress(s)
	if errParse != nil || addr.Address != s {
		return errInvalidEmail
	}
	_, domain, found := strings.Cut(s, "@")
	if !found || !strings.Contains(domain, ".") {
		return errInvalidEmail
	}
	return nil
}

var errInvalidEmail = errors.New("Invalid email address.")

// emailTLD checks the address's top-level domain against the cached
// allow-list. An empty snapshot means the list has not loaded yet;
// validation stays structural until the first successful sync.
func (v *Validator) emailTLD(s string) error {
	if v == nil || v.tlds == nil || v.tlds.Len() == 0 {
		return nil
	}
	segments := strings.Split(s, ".")
	last := segments[len(segments)-1]
	if !v.tlds.Contains(last) {
		return errors.New("Invalid top-level domain.")
	}
	return nil
}

// PhoneNumber checks that s parses as a mobile-type number under the
// libphonenumber grammar. Numbers must carry a country prefix.
func (v *Validator) PhoneNumber(s string) error {
	parsed, errParse := phonenumbers.Parse(s, "")
	if errParse != nil {
		return errInvalidPhone
	}
	if phonenumbers.GetNumberType(parsed) != phonenumbers.MOBILE {
		return errInvalidPhone
	}
	return nil
}

var errInvalidPhone = errors.New("Invalid phone number.")

// TOTPCode checks the shape of a submitted one-time code after the
// caller strips whitespace.
func (v *Validator) TOTPCode(s string) error {
	length := utf8.RuneCountInString(s)
	if length < 6 {
		return errors.New("TOTP code must be at least 6 characters long.")
	}
	if length > 16 {
		return errors.New("TOTP code must be at most 16 characters long.")
	}
	if !isAlphanumeric(s) {
		return errors.New("TOTP code must contain only alphanumeric characters.")
	}
	return nil
}

// Register runs every registration field check and returns the full
// field-keyed error map rather than stopping at the first failure.
func (v *Validator) Register(ctx context.Context, fullName, username, password, email, phoneNumber string) map[string]string {
	fieldErrors := make(map[string]string)

	if err := v.FullName(fullName); err != nil {
		fieldErrors["fullName"] = err.Error()
	}
	if err := v.Username(username); err != nil {
		fieldErrors["username"] = err.Error()
	}
	if err := v.Password(ctx, password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	if err := v.Email(ctx, email); err != nil {
		fieldErrors["email"] = err.Error()
	}
	if err := v.PhoneNumber(phoneNumber); err != nil {
		fieldErrors["phoneNumber"] = err.Error()
	}

	if len(fieldErrors) == 0 {
		return nil
	}
	return fieldErrors
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isASCIILetter(r) && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
