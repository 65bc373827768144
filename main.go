package main

import (
	"context"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"parley/internal/ai"
	"parley/internal/chat"
	"parley/internal/commands"
	"parley/internal/config"
	"parley/internal/directory"
	"parley/internal/http"
	"parley/internal/identity"
	"parley/internal/notify"
	"parley/internal/storage"
	"parley/internal/ws"
)

func run(ctx context.Context) error {
	addUser := flag.String("add-user", "", "Username to create (creates user and prints its ID and token)")
	addUserEmail := flag.String("email", "", "Email for the user created with -add-user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if *addUser != "" {
		return commands.AddUser(ctx, *addUser, *addUserEmail, cfg)
	}

	store, err := storage.NewBboltStore(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tokens, err := identity.NewService(ctx, cfg.TokenExpiry, store)
	if err != nil {
		return err
	}

	dir := directory.New(ctx, store)
	gateway := ai.New(ai.Config{
		Endpoint: cfg.AIEndpoint,
		Model:    cfg.AIModel,
		APIKey:   cfg.AIAPIKey,
		Timeout:  cfg.AITimeout,
		Retries:  cfg.AIRetries,
	})
	pusher := notify.NewWebPush(notify.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
	}, store)
	if !pusher.Enabled() {
		log.Println("Web push disabled: VAPID keys not configured")
	}

	pipeline := chat.NewPipeline(store, dir)
	hub := ws.NewHub(pipeline, pusher)

	apiServer := http.NewAPIServer(tokens, hub, store, dir, gateway, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
