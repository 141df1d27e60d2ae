package telemetry

import (
	"context"
	"os"
	"testing"

	"pacs-preloader/lib/configutil"
)

var setupTestEnvironments = map[string]bool{}

// SetupForTesting configures telemetry for a test run when a
// telemetry.json5 can be found up the tree; otherwise tracing stays a
// no-op. It never sets up the same service name twice.
func SetupForTesting(t testing.TB, serviceName string) func() {
	if setupTestEnvironments[serviceName] {
		return func() {}
	}
	setupTestEnvironments[serviceName] = true

	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if os.IsNotExist(err) {
		return func() {}
	}
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	tel, err := Setup(ctx, serviceName, config)
	if err != nil {
		t.Fatal(err)
	}
	return func() {
		if err := tel.Shutdown(ctx); err != nil {
			t.Fatal(err)
		}
	}
}
