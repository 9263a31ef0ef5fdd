package integration

import (
	"context"
	"testing"
	"time"

	"practicum/internal/app"
	"practicum/internal/config"
	"practicum/internal/platformtest"
)

// startClient wires a full client against the fake platform. An empty
// storePath keeps the session in memory.
func startClient(t *testing.T, p *platformtest.Platform, storePath string) *app.Application {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.API.AuthURL = p.AuthURL()
	cfg.API.MainURL = p.MainURL()
	cfg.API.RequestTimeout = 5 * time.Second
	cfg.Notifier.URL = p.NotifierURL()
	cfg.Notifier.ReadTimeout = 2 * time.Second
	cfg.Notifier.PingInterval = 500 * time.Millisecond
	cfg.Notifier.ReconnectInitialDelay = 10 * time.Millisecond
	cfg.Notifier.ReconnectMaxDelay = 50 * time.Millisecond
	if storePath == "" {
		cfg.Storage.Ephemeral = true
	} else {
		cfg.Storage.Path = storePath
	}

	application, err := app.NewApplication(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start client: %v", err)
	}
	return application
}

func stopClient(t *testing.T, application *app.Application) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Errorf("Failed to stop client: %v", err)
	}
}

func loginBob(t *testing.T, application *app.Application) {
	t.Helper()
	res := application.Session().Login(context.Background(), platformtest.BobLogin, platformtest.BobPassword)
	if !res.OK() {
		t.Fatalf("Login failed: %s (%v)", res.Message, res.Err)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
