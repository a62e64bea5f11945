package auth

// Metrics receives login and session events. The prometheus collector in
// internal/platform/metrics implements it.
type Metrics interface {
	LoginAttempt(provider Provider, outcome string)
	SessionCreated(provider Provider)
	SessionLookup(outcome string)
	SessionsSwept(count int64)
	Logout()
}

type noopMetrics struct{}

func (noopMetrics) LoginAttempt(Provider, string) {}
func (noopMetrics) SessionCreated(Provider)       {}
func (noopMetrics) SessionLookup(string)          {}
func (noopMetrics) SessionsSwept(int64)           {}
func (noopMetrics) Logout()                       {}
