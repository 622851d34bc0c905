package main

import "testing"

// TestCoverageGaps_IntentionallyUntested documents why cmd/service has no unit tests.
func TestCoverageGaps_IntentionallyUntested(t *testing.T) {
	t.Skip("main.go only wires clients, services, pollers and the router; each is tested in its internal package and the router end to end in internal/http")
}
