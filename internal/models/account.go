package models

import "time"

// Provider identifies the external email-sending platform an account belongs to
type Provider string

const (
	ProviderSmartlead  Provider = "smartlead"
	ProviderEmailBison Provider = "email_bison"
	ProviderInstantly  Provider = "instantly"
)

// ValidProvider reports whether p is one of the supported ESP providers
func ValidProvider(p Provider) bool {
	switch p {
	case ProviderSmartlead, ProviderEmailBison, ProviderInstantly:
		return true
	}
	return false
}

// Account represents one set of ESP credentials for a brand.
// The credential is encrypted at rest; the vault is the only component
// that sees the plaintext.
type Account struct {
	AccountID           string    `db:"account_id" json:"account_id"` // stable UUID, used for routing
	BrandID             string    `db:"brand_id" json:"brand_id"`
	DisplayName         string    `db:"display_name" json:"display_name"`
	Provider            Provider  `db:"provider" json:"provider"`
	EncryptedCredential string    `db:"encrypted_credential" json:"-"`
	IsPrimary           bool      `db:"is_primary" json:"is_primary"`
	Backfilled          bool      `db:"backfilled" json:"backfilled"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}
