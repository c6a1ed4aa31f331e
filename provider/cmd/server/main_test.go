package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/sensorhub/logging"
)

func TestMainWithArgs(t *testing.T) {
	logger := logging.NewTestLogger(t)

	err := mainWithArgs(context.Background(), []string{"main", "--unknown"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not defined")

	err = mainWithArgs(context.Background(), []string{"main", filepath.Join(t.TempDir(), "missing.json")}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	path := filepath.Join(t.TempDir(), "provider.json")
	conf := `{"listen_address": "127.0.0.1:0", "discovery": {"disabled": true}}`
	test.That(t, os.WriteFile(path, []byte(conf), 0o600), test.ShouldBeNil)

	// runs until the context is done
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.That(t, mainWithArgs(ctx, []string{"main", path}, logger), test.ShouldBeNil)
}
