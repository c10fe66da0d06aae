package validate

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sssdapp/commerce-api/internal/breach"
	"github.com/sssdapp/commerce-api/internal/tld"
)

type fakeResolver struct {
	records map[string][]*net.MX
}

func (f *fakeResolver) LookupMX(_ context.Context, domain string) ([]*net.MX, error) {
	records, ok := f.records[domain]
	if !ok {
		return nil, errors.New("no such host")
	}
	return records, nil
}

type fakeBreach struct {
	outcome breach.Outcome
	err     error
}

func (f *fakeBreach) Check(context.Context, string) (breach.Outcome, error) {
	return f.outcome, f.err
}

func testValidator(t *testing.T, breachChecker BreachChecker, failOpen bool) *Validator {
	t.Helper()
	store := tld.NewStore()
	store.Replace([]string{"COM", "ORG", "BA"})
	resolver := &fakeResolver{records: map[string][]*net.MX{
		"example.com": {{Host: "mx.example.com", Pref: 10}},
	}}
	return New(resolver, breachChecker, store, failOpen)
}

func TestUsername(t *testing.T) {
	v := testValidator(t, nil, false)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "janedoe", false},
		{"valid with digits", "jane42", false},
		{"too short", "ab", true},
		{"non-alphanumeric", "jane.doe", true},
		{"reserved admin", "admin", true},
		{"reserved case variant", "Admin", true},
		{"reserved root", "root", true},
		{"reserved superuser", "SUPERUSER", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Username(tt.input)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFullName(t *testing.T) {
	v := testValidator(t, nil, false)

	require.NoError(t, v.FullName("Jane Doe"))
	require.Error(t, v.FullName("Jo"))
	require.Error(t, v.FullName("Jane42"))

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	require.Error(t, v.FullName(string(long)))
}

func TestPasswordStructure(t *testing.T) {
	// No symbol.
	require.Error(t, PasswordStructure("password1"))
	require.Error(t, PasswordStructure("Password1"))
	// Underscore is not a symbol.
	require.Error(t, PasswordStructure("Passw0rd_"))
	// Whitespace is rejected outright.
	require.Error(t, PasswordStructure("Passw0rd !"))
	require.NoError(t, PasswordStructure("Passw0rd!"))
}

func TestPassword_BreachOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("compromised", func(t *testing.T) {
		v := testValidator(t, &fakeBreach{outcome: breach.OutcomeCompromised}, false)
		err := v.Password(ctx, "Passw0rd!")
		require.Error(t, err)
		assert.Equal(t, "Password has been compromised.", err.Error())
	})

	t.Run("clear", func(t *testing.T) {
		v := testValidator(t, &fakeBreach{outcome: breach.OutcomeClear}, false)
		require.NoError(t, v.Password(ctx, "Passw0rd!"))
	})

	t.Run("unreachable fail-closed", func(t *testing.T) {
		v := testValidator(t, &fakeBreach{err: errors.New("timeout")}, false)
		err := v.Password(ctx, "Passw0rd!")
		require.ErrorIs(t, err, ErrBreachUnavailable)
	})

	t.Run("unreachable fail-open", func(t *testing.T) {
		v := testValidator(t, &fakeBreach{err: errors.New("timeout")}, true)
		require.NoError(t, v.Password(ctx, "Passw0rd!"))
	})

	t.Run("structure failure skips breach check", func(t *testing.T) {
		v := testValidator(t, &fakeBreach{err: errors.New("unreachable")}, false)
		err := v.Password(ctx, "password1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBreachUnavailable)
	})
}

func TestEmail(t *testing.T) {
	ctx := context.Background()
	v := testValidator(t, nil, false)

	require.NoError(t, v.Email(ctx, "jane@example.com"))
	// Structure.
	require.Error(t, v.Email(ctx, "not-an-email"))
	require.Error(t, v.Email(ctx, "jane@nodots"))
	// TLD allow-list.
	err := v.Email(ctx, "jane@example.xyz")
	require.Error(t, err)
	assert.Equal(t, "Invalid top-level domain.", err.Error())
	// MX lookup.
	err = v.Email(ctx, "jane@unresolvable.com")
	require.Error(t, err)
	assert.Equal(t, "Invalid domain.", err.Error())
}

func TestEmail_EmptyTLDSnapshotIsStructuralOnly(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeResolver{records: map[string][]*net.MX{
		"example.com": {{Host: "mx.example.com", Pref: 10}},
	}}
	// An unloaded allow-list must not reject every address.
	v := New(resolver, nil, tld.NewStore(), false)

	require.NoError(t, v.Email(ctx, "jane@example.com"))
	require.NoError(t, v.Identifier("jane@example.com"))
	// Structural checks still apply.
	require.Error(t, v.Email(ctx, "jane@nodots"))

	// Once the list loads, the TLD check is enforced again.
	populated := tld.NewStore()
	populated.Replace([]string{"COM"})
	v = New(resolver, nil, populated, false)
	err := v.Email(ctx, "jane@example.xyz")
	require.Error(t, err)
	assert.Equal(t, "Invalid top-level domain.", err.Error())
}

func TestIdentifier(t *testing.T) {
	v := testValidator(t, nil, false)

	require.NoError(t, v.Identifier("janedoe"))
	require.NoError(t, v.Identifier("jane@example.com"))
	require.Error(t, v.Identifier("j!"))
	// Reserved usernames are not valid identifiers either.
	require.Error(t, v.Identifier("admin"))
}

func TestPhoneNumber(t *testing.T) {
	v := testValidator(t, nil, false)

	// Bosnian mobile number.
	require.NoError(t, v.PhoneNumber("+38761234567"))
	require.Error(t, v.PhoneNumber("not-a-number"))
	// Missing country prefix.
	require.Error(t, v.PhoneNumber("061234567"))
}

func TestTOTPCode(t *testing.T) {
	v := testValidator(t, nil, false)

	require.NoError(t, v.TOTPCode("123456"))
	require.Error(t, v.TOTPCode("12345"))
	require.Error(t, v.TOTPCode("12345678901234567"))
	require.Error(t, v.TOTPCode("123 456"))
}

func TestRegister_AggregatesAllFieldErrors(t *testing.T) {
	ctx := context.Background()
	v := testValidator(t, &fakeBreach{outcome: breach.OutcomeClear}, false)

	fieldErrors := v.Register(ctx, "J", "ab", "weak", "bad-email", "nope")
	require.Len(t, fieldErrors, 5)
	for _, field := range []string{"fullName", "username", "password", "email", "phoneNumber"} {
		assert.Contains(t, fieldErrors, field)
	}

	require.Nil(t, v.Register(ctx, "Jane Doe", "janedoe", "Passw0rd!", "jane@example.com", "+38761234567"))
}
