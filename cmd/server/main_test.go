package main

import (
	"context"
	"testing"

	"github.com/forgeboard/forum/internal/config"
	"github.com/forgeboard/forum/internal/domain/user"
	"github.com/forgeboard/forum/pkg/logger"
)

// Exercises the wiring main performs, so the entrypoint package stays
// covered by a plain test build.
func TestBuildStoresMemoryFallback(t *testing.T) {
	cfg := &config.Config{}
	cfg.Logging = config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	userStore, postStore, commentStore, closeStore, err := buildStores(cfg, log)
	if err != nil {
		t.Fatalf("buildStores() error = %v", err)
	}
	defer closeStore()

	if userStore == nil || postStore == nil || commentStore == nil {
		t.Fatal("buildStores() returned a nil store")
	}

	// The memory store must be usable end to end.
	created, err := userStore.CreateUser(context.Background(), user.User{
		Username:     "smoke",
		Email:        "smoke@x.com",
		PasswordHash: "hash",
		Role:         user.RoleUser,
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if created.ID == 0 {
		t.Error("CreateUser() returned zero id")
	}
}
