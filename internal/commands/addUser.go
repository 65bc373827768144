package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"parley/internal/config"
	"parley/internal/identity"
	"parley/internal/models"
	"parley/internal/storage"
)

// AddUser creates a user directly in the database and mints an access token
// for it. Registration has no self-serve flow, so this is how accounts are
// provisioned.
func AddUser(ctx context.Context, username, email string, cfg *config.Config) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username must not be empty")
	}

	store, err := storage.NewBboltStore(cfg.DBFile)
	if err != nil {
		return fmt.Errorf("failed to open database: %w. Is the server running?", err)
	}
	defer func() {
		_ = store.Close()
	}()

	profile := models.Profile{
		ID:       uuid.NewString(),
		Username: username,
		Email:    email,
	}
	if err := store.UpsertUser(profile); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	tokens, err := identity.NewService(ctx, cfg.TokenExpiry, store)
	if err != nil {
		return fmt.Errorf("failed to init token service: %w", err)
	}
	token, err := tokens.Issue(profile.ID)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Printf("\nUser Created Successfully!\n")
	fmt.Printf("Username:   %s\n", profile.Username)
	fmt.Printf("User ID:    %s\n", profile.ID)
	fmt.Printf("Token:      %s\n\n", token)
	fmt.Println("Connect with ws://<host>/ws?userId=" + profile.ID + " and send the token in the 'token' header or query parameter.")
	return nil
}
