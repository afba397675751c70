// Package fixtures holds shared constants for auth tests so phone
// numbers, issuers, and secrets are not repeated as magic strings.
package fixtures

const (
	Phone    = "+8613800138000"
	AltPhone = "+8613900139000"
	ClientIP = "203.0.113.7"
)

const (
	Issuer    = "http://localhost:3000"
	Audience  = "learnhub-api"
	Subject   = "ba-user-123"
	KeyID     = "key-2026-10"
	AltKeyID  = "key-2026-11"
	JWTSecret = "test-secret-at-least-32-bytes-long!"
)

const (
	Nickname  = "Ada"
	AvatarURL = "https://cdn.example.test/ada.png"
)
