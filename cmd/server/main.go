package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/api"
	"github.com/pulsecrm/backend/internal/auth"
	"github.com/pulsecrm/backend/internal/config"
	"github.com/pulsecrm/backend/internal/crypto"
	"github.com/pulsecrm/backend/internal/db"
	"github.com/pulsecrm/backend/internal/ingest"
	"github.com/pulsecrm/backend/internal/mailer"
	"github.com/pulsecrm/backend/internal/notify"
	"github.com/pulsecrm/backend/internal/provider"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	log.Printf("Successfully connected to database")

	server := NewServer(cfg, pool)

	address := ":" + cfg.Port
	log.Printf("PulseCRM email backend starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// NewServer creates and returns a new HTTP handler for the PulseCRM email API.
func NewServer(cfg *config.Config, dbPool *pgxpool.Pool) http.Handler {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		log.Fatalf("Failed to create encryptor: %v", err)
	}

	clients := provider.NewPool(cfg.ProviderBaseURL, cfg.ProviderTokenURL)
	hub := notify.NewHub(10)
	notifier := notify.NewNotifier(dbPool, hub)

	mailService := mailer.NewService(dbPool, clients, encryptor, cfg.PublicBaseURL)
	ingestJob := ingest.NewJob(dbPool, clients, encryptor, notifier)

	sendHandler := api.NewSendHandler(mailService)
	repliesHandler := api.NewRepliesHandler(ingestJob)
	threadsHandler := api.NewThreadsHandler(dbPool)
	accountsHandler := api.NewAccountsHandler(dbPool, encryptor)
	trackHandler := api.NewTrackHandler(dbPool, notifier)
	wsHandler := api.NewWebSocketHandler(dbPool, hub, cfg.ServiceToken)

	requireToken := auth.RequireToken(cfg.ServiceToken)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	mux.Handle("/api/v1/emails/send", requireToken(http.HandlerFunc(sendHandler.SendEmail)))
	mux.Handle("/api/v1/emails/check-replies", requireToken(http.HandlerFunc(repliesHandler.CheckReplies)))
	mux.Handle("/api/v1/threads", requireToken(http.HandlerFunc(threadsHandler.GetThreads)))
	mux.Handle("/api/v1/accounts", requireToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			accountsHandler.GetAccounts(w, r)
		case http.MethodPost:
			accountsHandler.PostAccount(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// WebSocket handler handles its own authentication via query parameter
	// (since browsers can't set headers on WebSocket connections).
	mux.Handle("/api/v1/ws", http.HandlerFunc(wsHandler.Handle))

	// Tracking endpoints are hit by recipient mail clients and carry no token.
	mux.Handle("/track/click", http.HandlerFunc(trackHandler.Click))
	mux.Handle("/track/open/", http.HandlerFunc(trackHandler.Open))

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "PulseCRM email API is running")
}
