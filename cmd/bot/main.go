package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/temikng/email-attestation-bot/internal/bot"
	"github.com/temikng/email-attestation-bot/internal/commitment"
	"github.com/temikng/email-attestation-bot/internal/config"
	"github.com/temikng/email-attestation-bot/internal/keylock"
	"github.com/temikng/email-attestation-bot/internal/ledger"
	"github.com/temikng/email-attestation-bot/internal/mailer"
	"github.com/temikng/email-attestation-bot/internal/payments"
	"github.com/temikng/email-attestation-bot/internal/poster"
	"github.com/temikng/email-attestation-bot/internal/reward"
	"github.com/temikng/email-attestation-bot/internal/storage"
	"github.com/temikng/email-attestation-bot/internal/verification"
	"github.com/temikng/email-attestation-bot/internal/webhook"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()
	if missing := cfg.Validate(); len(missing) > 0 {
		for _, m := range missing {
			log.Error(m)
		}
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Initialize wallet node client
	node := ledger.NewClient(cfg.NodeBaseURL, cfg.NodeAPIKey)
	log.Info("wallet node client initialized", "base_url", cfg.NodeBaseURL)

	// Initialize mailer
	mail := mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword,
		cfg.FromEmail, cfg.FromEmailName, cfg.AdminEmail, log)

	// Initialize telegram bot. The responder is attached after the engine
	// components, which use the bot as their messenger.
	tgBot, err := bot.New(cfg.BotToken, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	// Initialize engine components
	eng := commitment.New(cfg.Salt)
	locks := keylock.New()

	verif := verification.New(store, mail, tgBot, cfg.MaxCheckingAttempts, log)
	reconciler := payments.New(store, node, tgBot, verif,
		cfg.PriceBytes, time.Duration(cfg.PriceTimeoutSec)*time.Second,
		[]string{cfg.AttestorAddress, cfg.DistributionAddress}, log)
	post := poster.New(store, node, eng, tgBot, mail, locks, cfg.AttestorAddress, log)
	distributor := reward.New(store, node, eng, tgBot, locks,
		cfg.RewardBytes, cfg.ReferralRewardBytes, cfg.DistributionAddress, log)
	post.SetAfterPost(distributor.HandleAttested)

	funds := payments.NewFundsSweeper(reconciler, cfg.AttestorAddress)

	tgBot.SetResponder(bot.NewResponder(store, node, verif, post, locks, tgBot,
		cfg.PriceBytes, cfg.RewardBytes, log))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Startup self-checks
	go checkNode(ctx, node, cfg.AttestorAddress, log)

	// Start webhook server
	webhookServer := webhook.NewServer(reconciler.HandleObserved, reconciler.HandleConfirmed, log)
	go func() {
		if err := webhookServer.Start(ctx, cfg.WebhookPort); err != nil && err != http.ErrServerClosed {
			log.Error("webhook server", "error", err)
		}
	}()

	// Start subscription sync loop
	webhookManager := webhook.NewManager(store, node, cfg.WebhookEndpoint, log)
	go webhookManager.SyncLoop(ctx, 30*time.Second)

	// Start retry sweeps
	go runSweeps(ctx, post, verif, distributor, funds)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	tgBot.Start(ctx)
}

// checkNode verifies the wallet node is reachable and the attestor address is
// funded. Problems are logged, not fatal: the node may still be syncing.
func checkNode(ctx context.Context, node ledger.API, attestorAddress string, log *slog.Logger) {
	syncing, err := node.IsSyncing(ctx)
	if err != nil {
		log.Error("wallet node unreachable", "error", err)
		return
	}
	if syncing {
		log.Warn("wallet node is still syncing")
	}

	balance, err := node.ReadBalance(ctx, attestorAddress)
	if err != nil {
		log.Error("read attestor balance", "error", err)
		return
	}
	log.Info("attestor balance", "address", ledger.ShortAddr(attestorAddress, 6), "balance", balance)
	if balance == 0 {
		log.Warn("attestor address is not funded, posting will fail")
	}
}

// runSweeps drives the periodic retry loops: unposted attestations, unsent
// verification emails, unpaid rewards and accumulated receiving-address funds.
func runSweeps(ctx context.Context, post *poster.Poster, verif *verification.Lifecycle,
	distributor *reward.Distributor, funds *payments.FundsSweeper) {

	postTicker := time.NewTicker(10 * time.Second)
	defer postTicker.Stop()
	slowTicker := time.NewTicker(60 * time.Second)
	defer slowTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-postTicker.C:
			post.Sweep(ctx)
		case <-slowTicker.C:
			verif.ResendSweep(ctx)
			distributor.RetrySweep(ctx)
			funds.Sweep(ctx)
		}
	}
}
