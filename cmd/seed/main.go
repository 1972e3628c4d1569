// Package main bootstraps a fresh instance: it creates the supergod owner
// account with a generated password and prints the credentials once.
// Running it against an instance that already has an owner is a no-op.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kmarchand/studioforge/internal/dbal"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	"github.com/kmarchand/studioforge/internal/dbal/ops"
	"github.com/kmarchand/studioforge/internal/platform/config"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

func main() {
	username := flag.String("username", "admin", "owner account username")
	email := flag.String("email", "admin@localhost.local", "owner account email")
	timeout := flag.Duration("timeout", 30*time.Second, "maximum run time")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	layer, err := dbal.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = layer.Close() }()

	password, err := generatePassword()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	user, err := layer.DAL.Users.Create(ctx, ops.CreateUserInput{
		Username:        *username,
		Email:           *email,
		Password:        password,
		Role:            entity.RoleSuperGod,
		IsInstanceOwner: true,
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeConflict {
			fmt.Println("instance already has an owner, nothing to do")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created owner account %s (%s)\n", user.Username, user.ID)
	fmt.Printf("password: %s\n", password)
	fmt.Println("store this password now; it is not shown again")
}

func generatePassword() (string, error) {
	raw := make([]byte, 18)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
