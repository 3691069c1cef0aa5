package jobAuth

// SecurityPolicy reports the effective security posture of the engine. It never
// includes key material.
func (e *Engine) SecurityPolicy() SecurityPolicy {
	if e == nil {
		return SecurityPolicy{}
	}

	cfg := e.config
	return SecurityPolicy{
		SigningAlgorithm:   cfg.JWT.SigningMethod,
		AccessTTL:          cfg.JWT.AccessTTL,
		RefreshTTL:         e.sessions.TTL(),
		VerificationTTL:    e.verify.TTL(),
		PasswordResetTTL:   e.reset.TTL(),
		LockoutEnabled:     cfg.Lockout.Enabled,
		LockoutTiers:       append([]LockoutTier(nil), e.lockout.Tiers()...),
		SuspiciousWindow:   cfg.Suspicious.Window,
		SuspiciousMaxIPs:   cfg.Suspicious.MaxDistinctIPs,
		RateLimitingActive: e.limiter != nil,
		Argon2: Argon2Report{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
	}
}
