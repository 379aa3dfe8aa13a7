package models

// User identifies an API client. Token issuance happens out of band; the
// service only resolves tokens to user ids.
type User struct {
	ID        int64  `json:"id" db:"id"`
	APIToken  string `json:"-" db:"api_token"`
	CreatedAt int64  `json:"created_at" db:"created_at"`
}
