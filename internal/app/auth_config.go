package app

import (
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/auth"
)

// TokenServiceConfig converts AuthConfig into the parameters expected by the token service.
func (c AuthConfig) TokenServiceConfig() auth.TokenConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.TokenConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// ResetTokenOptions converts AuthConfig into reset token service options.
func (c AuthConfig) ResetTokenOptions() []auth.ResetOption {
	var opts []auth.ResetOption
	if c.Reset.TTL > 0 {
		opts = append(opts, auth.WithResetExpiry(c.Reset.TTL))
	}
	if c.Reset.TokenLength > 0 {
		opts = append(opts, auth.WithResetTokenSize(c.Reset.TokenLength))
	}
	return opts
}
