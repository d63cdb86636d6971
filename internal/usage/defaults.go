package usage

// DefaultDailyLimit applies when a user has no configured limit, and serves
// as the conservative fallback when the limit lookup fails.
const DefaultDailyLimit = 10
