package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	flag "github.com/spf13/pflag"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/audit"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/auth"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/config"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/httpserver"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/imaging"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/keys"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/service"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/signing"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/validator"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	// Command-line flags override the environment.
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.PrivateKeyPath, "private-key", cfg.PrivateKeyPath, "PKCS#8 PEM Ed25519 private key")
	flag.StringVar(&cfg.PublicKeyPath, "public-key", cfg.PublicKeyPath, "PKIX PEM Ed25519 public key")
	flag.StringVar(&cfg.ValidatorURL, "validator-url", cfg.ValidatorURL, "validator proxy base URL")
	flag.DurationVar(&cfg.ValidatorTimeout, "validator-timeout", cfg.ValidatorTimeout, "per-attempt validator timeout")
	flag.IntVar(&cfg.MaxImagePixels, "max-image-pixels", cfg.MaxImagePixels, "largest accepted upload in pixels")
	flag.IntVar(&cfg.ValidatorRetries, "validator-retries", cfg.ValidatorRetries, "retries on validator transport errors")
	flag.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "audit database (postgres:// or sqlite://)")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	kp, err := keys.LoadFiles(cfg.PrivateKeyPath, cfg.PublicKeyPath)
	if err != nil {
		log.Fatalf("load keys: %v", err)
	}
	signer := signing.NewEd25519Signer(kp, cfg.SignerID)
	registry := keys.NewRegistry()
	registry.Add(cfg.SignerID, kp)
	log.Printf("[startup] signer %s loaded (public key %s)", cfg.SignerID, kp.PublicKeyRawB64())

	ctx := context.Background()
	store, db := openAuditStore(ctx, cfg)
	if db != nil {
		defer db.Close()
	}

	var publisher audit.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		p, err := audit.NewKafkaProducer(audit.KafkaProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
		publisher = p
		log.Printf("[startup] publishing audit events to kafka topic %s", cfg.KafkaTopic)
	}

	var archiver audit.Archiver
	if cfg.S3Bucket != "" {
		a, err := audit.NewS3Archiver(ctx, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			log.Fatalf("s3 archiver: %v", err)
		}
		archiver = a
		log.Printf("[startup] archiving forwarded images to s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
	}

	recorder := audit.NewRecorder(store, signer, publisher, archiver)
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Printf("audit recorder close: %v", err)
		}
	}()

	client, err := validator.NewHTTPClient(validator.HTTPClientConfig{
		BaseURL: cfg.ValidatorURL,
		Path:    cfg.ValidatorPath,
		Timeout: cfg.ValidatorTimeout,
		Retries: cfg.ValidatorRetries,
	})
	if err != nil {
		log.Fatalf("validator client: %v", err)
	}
	log.Printf("[startup] forwarding to %s", client.URL())

	var issuer *auth.Issuer
	if cfg.CredentialTokenTTL > 0 {
		issuer = auth.NewIssuer(kp, cfg.SignerID, cfg.CredentialTokenTTL)
	}
	verifier := auth.NewVerifier(kp.PublicKey(), cfg.SignerID)

	svc := service.New(signer, client, recorder, service.Config{
		Threshold: cfg.MajorityThreshold,
		Issuer:    issuer,
		ImageLimits: imaging.Limits{
			MaxPixels: int64(cfg.MaxImagePixels),
			MaxFrames: cfg.MaxGIFFrames,
		},
	})

	server := httpserver.New(cfg, svc, registry, verifier)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Validator gateway listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	shutdown(httpServer)
}

// openAuditStore returns a SQL-backed store when a database is configured and
// the in-memory store otherwise.
func openAuditStore(ctx context.Context, cfg config.Config) (audit.Store, *sql.DB) {
	if cfg.DatabaseURL == "" {
		log.Printf("[startup] no database configured, audit trail kept in memory")
		return audit.NewMemoryStore(), nil
	}
	driver, dsn, err := audit.OpenDSN(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database url: %v", err)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if driver == "sqlite3" {
		// One writer keeps sqlite from returning SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	store := audit.NewSQLStore(db)
	if err := store.EnsureSchema(pingCtx); err != nil {
		log.Fatalf("audit schema: %v", err)
	}
	log.Printf("[startup] audit trail stored in %s", driver)
	return store, db
}

func shutdown(s *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
