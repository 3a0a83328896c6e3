// Package main runs the presale HTTP service: the vesting engine and token
// ledger behind signed JSON routes, with an optional event history in
// ClickHouse and a websocket event stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"presale-vesting/internal/api"
	"presale-vesting/internal/auth"
	"presale-vesting/internal/events"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
	"presale-vesting/internal/storage/bolt"
	chstore "presale-vesting/internal/storage/clickhouse"
	"presale-vesting/internal/storage/memory"
	"presale-vesting/internal/storage/migrations"
	pgstore "presale-vesting/internal/storage/postgres"
	"presale-vesting/internal/token"
	"presale-vesting/internal/vesting"
)

// DefaultProgramID namespaces derived addresses when none is configured.
const DefaultProgramID = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"

type config struct {
	storeKind       string
	postgresDSN     string
	clickhouseDSN   string
	boltPath        string
	httpAddr        string
	rpcEndpoint     string
	programID       solana.PublicKey
	window          time.Duration
	lenient         bool
	stream          bool
	shutdownTimeout time.Duration
}

// rpcCheckTimeout bounds the startup call to the RPC endpoint.
const rpcCheckTimeout = 10 * time.Second

// stores holds the selected ledger and event stores.
type stores struct {
	ledger  storage.Store
	events  storage.EventStore
	name    string
	cleanup func()
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	storeKind := flag.String("store", envOr("PRESALE_STORE", "memory"), "Ledger store: memory, bolt or postgres")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (store=postgres)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the event history (optional)")
	boltPath := flag.String("bolt-path", envOr("BOLT_PATH", "data/presale.db"), "bbolt database file (store=bolt)")
	httpAddr := flag.String("http-addr", envOr("HTTP_ADDR", ":8080"), "HTTP listen address")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC endpoint for mint import (optional)")
	programIDStr := flag.String("program-id", envOr("PRESALE_PROGRAM_ID", DefaultProgramID), "Program ID namespacing derived addresses")
	window := flag.Duration("signature-window", auth.DefaultWindow, "Maximum age of a signed request")
	lenient := flag.Bool("lenient-solvency", false, "Skip the aggregate solvency check on claim")
	stream := flag.Bool("stream", true, "Serve the websocket event stream on /v1/events")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	programID, err := solana.PublicKeyFromBase58(*programIDStr)
	if err != nil {
		logger.Fatalf("Invalid --program-id: %v", err)
	}

	cfg := config{
		storeKind:       strings.ToLower(*storeKind),
		postgresDSN:     *postgresDSN,
		clickhouseDSN:   *clickhouseDSN,
		boltPath:        *boltPath,
		httpAddr:        *httpAddr,
		rpcEndpoint:     *rpcEndpoint,
		programID:       programID,
		window:          *window,
		lenient:         *lenient,
		stream:          *stream,
		shutdownTimeout: *shutdownTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

func run(ctx context.Context, cfg config, logger *log.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer st.cleanup()

	var publishers events.Multi
	if st.events != nil {
		publishers = append(publishers, events.NewStorePublisher(st.events))
	}

	var hub *events.Hub
	if cfg.stream {
		hub = events.NewHub(nil, log.New(os.Stdout, "[events] ", log.LstdFlags|log.Lshortfile))
		defer hub.Close()
		publishers = append(publishers, hub)
	}

	engine := vesting.NewEngine(vesting.Options{
		Store:           st.ledger,
		ProgramID:       cfg.programID,
		Clock:           vesting.SystemClock{},
		Publisher:       publishers,
		Logger:          log.New(os.Stdout, "[vesting] ", log.LstdFlags|log.Lshortfile),
		LenientSolvency: cfg.lenient,
	})

	tokenOpts := token.ServiceOptions{
		Store:  st.ledger,
		Logger: log.New(os.Stdout, "[token] ", log.LstdFlags|log.Lshortfile),
	}
	if cfg.rpcEndpoint != "" {
		rpc := solana.NewHTTPClient(cfg.rpcEndpoint)
		if slot, err := checkRPC(ctx, rpc, rpcCheckTimeout); err != nil {
			logger.Printf("Warning: %v; mint import will fail until it recovers", err)
		} else {
			logger.Printf("Mint import enabled via %s (slot %d)", cfg.rpcEndpoint, slot)
		}
		tokenOpts.Reader = rpc
	}
	tokens := token.NewService(tokenOpts)

	opts := api.Options{
		Engine:    engine,
		Tokens:    tokens,
		Events:    st.events,
		Window:    cfg.window,
		Logger:    log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lshortfile),
		StoreName: st.name,
	}
	if hub != nil {
		opts.Stream = hub
		opts.ClientCount = hub.ClientCount
	}

	httpServer := &http.Server{
		Addr:              cfg.httpAddr,
		Handler:           api.NewServer(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Starting HTTP server on %s (store=%s, program=%s)", cfg.httpAddr, st.name, cfg.programID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Printf("Shutting down (timeout %v)...", cfg.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()
	if hub != nil {
		// Hijacked websocket connections are not tracked by Shutdown.
		hub.Close()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// openStores creates the ledger store selected by cfg.storeKind and the
// event store: ClickHouse when a DSN is set, otherwise the ledger backend's
// own event log where it has one.
func openStores(ctx context.Context, cfg config, logger *log.Logger) (*stores, error) {
	st := &stores{name: cfg.storeKind}
	var closers []func()
	st.cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.storeKind {
	case "memory":
		st.ledger = memory.NewLedgerStore()
		st.events = memory.NewEventStore()
		logger.Println("Using in-memory ledger; state is lost on exit")

	case "bolt":
		db, err := bolt.Open(cfg.boltPath)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { db.Close() })
		st.ledger = db
		st.events = db.Events()
		logger.Printf("Using bbolt ledger at %s", cfg.boltPath)

	case "postgres":
		if cfg.postgresDSN == "" {
			return nil, errors.New("--postgres-dsn is required for store=postgres")
		}
		pool, err := pgstore.NewPool(ctx, cfg.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		ledger := pgstore.NewLedgerStore(pool)
		closers = append(closers, func() { ledger.Close() })
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			st.cleanup()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Printf("Applied postgres migrations: %v", applied)
		}
		st.ledger = ledger
		logger.Println("Using PostgreSQL ledger")

	default:
		return nil, fmt.Errorf("unknown store %q (want memory, bolt or postgres)", cfg.storeKind)
	}

	if cfg.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
		if err != nil {
			st.cleanup()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		st.events = chstore.NewEventStore(conn)
		logger.Println("Recording ledger events in ClickHouse")
	}
	if st.events == nil {
		logger.Println("No event store configured; event history is unavailable")
	}
	return st, nil
}

// slotReader is the part of the RPC client used to check the endpoint.
type slotReader interface {
	GetSlot(ctx context.Context) (int64, error)
}

// checkRPC asks the endpoint for its current slot.
func checkRPC(ctx context.Context, rpc slotReader, timeout time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	slot, err := rpc.GetSlot(ctx)
	if err != nil {
		return 0, fmt.Errorf("rpc endpoint unreachable: %w", err)
	}
	return slot, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
