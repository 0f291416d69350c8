package accounts

import "time"

// Account is the persisted account record. The password is stored only as a
// bcrypt hash; the plaintext never reaches the store or the wire.
type Account struct {
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}
