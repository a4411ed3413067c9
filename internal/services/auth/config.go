// internal/services/auth/config.go
package auth

import "time"

type Config struct {
	BcryptCost    int
	TOTPIssuer    string
	TOTPEnrollTTL time.Duration
}
