// Package quota implements the pure monthly quota admission rule.
package quota

// Policy is the per-plan monthly cap a tenant's usage is checked against.
type Policy struct {
	IncludedMessages int
	HardTokenCap     int
}

// Counter is the tenant's current-month usage.
type Counter struct {
	MessagesUsed int
	TokensUsed   int
}

// Allow reports whether one more request of estimatedTokens fits within
// policy given counter. It has no side effects and is safe to call with a
// freshly computed counter per request.
func Allow(policy Policy, counter Counter, estimatedTokens int) bool {
	if estimatedTokens < 0 {
		estimatedTokens = 0
	}
	if counter.MessagesUsed+1 > policy.IncludedMessages {
		return false
	}
	if counter.TokensUsed+estimatedTokens > policy.HardTokenCap {
		return false
	}
	return true
}
