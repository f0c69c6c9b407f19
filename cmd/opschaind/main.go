// Command opschaind runs the node daemon: it opens the on-disk account and
// event stores, bootstraps a fresh genesis block, starts the HTTP
// read/write adapter, and serves until it receives SIGINT/SIGTERM. Blocks
// are held in memory only; they are not reloaded from disk on restart.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"opschain/config"
	"opschain/core/chain"
	"opschain/core/client"
	"opschain/crypto"
	"opschain/gateway/middleware"
	"opschain/native/opssop"
	"opschain/observability/logging"
	"opschain/observability/metrics"
	"opschain/rpc"
	"opschain/storage"
)

const treasuryPassphraseEnv = "OPSCHAIN_TREASURY_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "path to the node's configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("OPSCHAIN_ENV"))
	logger := logging.Setup("opschaind", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	events, err := opssop.OpenBoltStore(cfg.EventStorePath)
	if err != nil {
		logger.Error("open event store", slog.Any("error", err))
		os.Exit(1)
	}
	defer events.Close()

	treasuryKey, err := loadOrCreateTreasuryKey(cfg.TreasuryKeystorePath)
	if err != nil {
		logger.Error("load treasury key", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("treasury key loaded", slog.String("address", treasuryKey.PubKey().Address().String()))

	now := time.Now().Unix()
	c, err := chain.New(db, events, treasuryKey, cfg.TreasuryBalance, now)
	if err != nil {
		logger.Error("bootstrap chain", slog.Any("error", err))
		os.Exit(1)
	}
	cl := client.New(c)

	m := metrics.New()

	var authenticator *middleware.Authenticator
	if cfg.JWTSigningSecret != "" {
		authenticator = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:      true,
			HMACSecret:   cfg.JWTSigningSecret,
			ScopeClaim:   "scope",
			SubjectClaim: "sub",
			Registry:     c.Registry(),
		}, nil)
	}

	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"submit": {RatePerSecond: float64(cfg.RateLimitPerMin) / 60.0, Burst: cfg.RateLimitPerMin},
	}, nil)

	router := rpc.NewRouter(rpc.Config{
		Client:        cl,
		Metrics:       m,
		Authenticator: authenticator,
		RateLimiter:   limiter,
		Logger:        logger,
		Clock:         func() int64 { return time.Now().Unix() },
	})

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		logger.Error("listen", slog.Any("error", err))
		os.Exit(1)
	}
	go func() {
		logger.Info("listening", slog.String("address", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}

// loadOrCreateTreasuryKey decrypts the Treasury key from its keystore file,
// minting and persisting a fresh one on first run. The passphrase is never
// read from the TOML config; it comes from the environment so it never
// ends up on disk alongside the encrypted key.
func loadOrCreateTreasuryKey(keystorePath string) (*crypto.PrivateKey, error) {
	passphrase := os.Getenv(treasuryPassphraseEnv)

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
			return nil, err
		}
		return key, nil
	}

	return crypto.LoadFromKeystore(keystorePath, passphrase)
}
