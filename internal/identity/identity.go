// Package identity defines the gateway to the external identity provider.
// The provider owns UserRecord lifecycle; this service only requests
// transitions on it (create, attribute updates, enable/disable) and never
// deletes records.
package identity

import "context"

// Attribute names on the provider's user representation.
const (
	AttrPhoneNumber         = "phoneNumber"
	AttrPhoneType           = "phoneType"
	AttrPhoneNumberVerified = "phoneNumberVerified"
	AttrGender              = "gender"
	AttrCountry             = "country"
	AttrVerificationRoute   = "verificationRoute"
)

// PhoneTypeWhatsApp marks accounts onboarded through the WhatsApp channel.
const PhoneTypeWhatsApp = "whatsapp"

// VerificationRouteEmailOTP marks accounts whose email was proven by OTP.
const VerificationRouteEmailOTP = "email_otp"

// RequiredActionUpdatePassword forces a password set on first login; new
// accounts are created without credentials.
const RequiredActionUpdatePassword = "UPDATE_PASSWORD"

// User mirrors the provider's admin representation of an account. Username
// is the E.164 phone number for accounts created by this service.
type User struct {
	ID              string              `json:"id,omitempty"`
	Username        string              `json:"username"`
	Email           string              `json:"email,omitempty"`
	FirstName       string              `json:"firstName,omitempty"`
	LastName        string              `json:"lastName,omitempty"`
	Enabled         bool                `json:"enabled"`
	EmailVerified   bool                `json:"emailVerified"`
	RequiredActions []string            `json:"requiredActions,omitempty"`
	Attributes      map[string][]string `json:"attributes,omitempty"`
}

// Attr returns the first value of a multi-valued attribute, or "".
func (u *User) Attr(name string) string {
	if values := u.Attributes[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// SetAttr sets a single-valued attribute, allocating the map lazily.
func (u *User) SetAttr(name, value string) {
	if u.Attributes == nil {
		u.Attributes = make(map[string][]string)
	}
	u.Attributes[name] = []string{value}
}

// Gateway is the capability interface over the identity provider. Lookup
// misses are sentinel.ErrNotFound; a create colliding with an existing
// username or email is sentinel.ErrConflict; provider 5xx responses wrap
// sentinel.ErrUnavailable. All calls respect the context deadline.
type Gateway interface {
	// FindByPhone matches username == phone or the phoneNumber attribute.
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) (string, error)
	Update(ctx context.Context, user *User) error
}
