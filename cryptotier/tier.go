package cryptotier

// Tier is a ranked cryptographic capability level. Lower value is stronger.
type Tier int

const (
	// TierPlatform is the platform-backed provider (OS entropy + argon2id).
	TierPlatform Tier = 1
	// TierSoftware is the pure-software provider (chacha20 keystream + pbkdf2).
	TierSoftware Tier = 2
	// TierFallback is the deterministic insecure fallback. Availability only.
	TierFallback Tier = 3
)

// String returns the short tier tag stored in credential bundles.
func (t Tier) String() string {
	switch t {
	case TierPlatform:
		return "T1"
	case TierSoftware:
		return "T2"
	case TierFallback:
		return "T3"
	default:
		return "T?"
	}
}

// Secure reports whether output from this tier may be treated as a secret.
func (t Tier) Secure() bool {
	return t == TierPlatform || t == TierSoftware
}

// ParseTier converts a stored tier tag back to a Tier. Unknown tags map to
// TierFallback so stale bundles verify with the weakest algorithm rather
// than failing outright.
func ParseTier(tag string) Tier {
	switch tag {
	case "T1":
		return TierPlatform
	case "T2":
		return TierSoftware
	default:
		return TierFallback
	}
}
