package authn

import "github.com/dmitrijs2005/gophauth/internal/store"

// Credential is a decoded credential row. Value is empty in listings.
type Credential struct {
	ID            string
	Sub           string
	Type          string
	Name          string
	OTP           bool
	EncryptionKey string
	Value         string
	Create        int64
	Update        int64
	Verify        int64
	Expire        int64
	// Row holds every stored column, including plugin-specific ones.
	Row store.Row
}

func credentialFromRow(row store.Row, value string) *Credential {
	return &Credential{
		ID:            row.String("id"),
		Sub:           row.String("sub"),
		Type:          row.String("type"),
		Name:          row.String("name"),
		OTP:           row.Bool("otp"),
		EncryptionKey: row.String("encryptionKey"),
		Value:         value,
		Create:        row.Int64("create"),
		Update:        row.Int64("update"),
		Verify:        row.Int64("verify"),
		Expire:        row.Int64("expire"),
		Row:           row.Without("value", "encryptionKey"),
	}
}

// Values are the inputs for a new credential. Extra columns are stored as
// given and never override the core columns.
type Values struct {
	ID    string
	Sub   string
	Value string
	Name  string
	Extra store.Row
}

// Patch updates an existing credential. EncryptionKey is the wrapped row
// key; when empty it is read from the store.
type Patch struct {
	ID            string
	Sub           string
	EncryptionKey string
	Value         string
	Extra         store.Row
}
