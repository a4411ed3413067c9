package models

// Subscription tiers recognized by the gateway rate limiter.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// TierLimit resolves a tier to its request limit. Unknown tiers fall back to
// the free tier, and a missing free entry falls back to the given default.
func TierLimit(limits map[string]int, tier string, def int) int {
	if n, ok := limits[tier]; ok {
		return n
	}
	if n, ok := limits[TierFree]; ok {
		return n
	}
	return def
}
