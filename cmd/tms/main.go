package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/riftvanta/tms062025/internal/config"
	"github.com/riftvanta/tms062025/internal/deps"
	"github.com/riftvanta/tms062025/internal/orderid"
	"github.com/riftvanta/tms062025/internal/server"
	"github.com/riftvanta/tms062025/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.NewConfig()

	store, err := storage.NewPostgresStorage(ctx, cfg.DatabaseURI)
	if err != nil {
		cfg.Logger.Fatal(err)
	}

	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		username := os.Getenv("ADMIN_USERNAME")
		if username == "" {
			username = "admin"
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			cfg.Logger.Fatal(err)
		}
		if err := store.EnsureAdmin(ctx, username, string(hash)); err != nil {
			cfg.Logger.Fatal(err)
		}
	}

	allocator, err := orderid.NewAllocator(store)
	if err != nil {
		cfg.Logger.Fatal(err)
	}

	d := deps.NewDependencies(cfg)

	srv := server.NewServer(store, store, store, allocator, cfg, d)
	if err := srv.Run(ctx); err != nil {
		cfg.Logger.Fatal(err)
	}
}
