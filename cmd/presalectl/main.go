// Command presalectl manages keys, derives presale addresses and sends
// signed requests to the presale server.
//
// Usage:
//
//	presalectl <command> [flags] [args]
//
// Run "presalectl help" for the command list.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"presale-vesting/internal/client"
	"presale-vesting/internal/keystore"
)

// DefaultServer is used when neither --server nor PRESALE_SERVER is set.
const DefaultServer = "http://localhost:8080"

// command is one presalectl subcommand.
type command struct {
	usage string
	brief string
	run   func(ctx context.Context, e *env, args []string) error
}

// commands is filled in init; the runners refer back to it for usage text.
var commands map[string]command

func init() {
	commands = map[string]command{
		"keygen":           {"keygen --out FILE", "generate an encrypted identity key", runKeygen},
		"pubkey":           {"pubkey [--keystore FILE]", "print the identity of a keystore", runPubkey},
		"derive":           {"derive --title T [--owner KEY] [--program-id ID]", "derive presale, pool and participant addresses offline", runDerive},
		"create-mint":      {"create-mint --symbol S --decimals N", "create a mint owned by the key", runCreateMint},
		"import-mint":      {"import-mint --address MINT", "register an on-chain mint", runImportMint},
		"mint-to":          {"mint-to --mint MINT --owner KEY --amount A", "mint tokens (mint authority only)", runMintTo},
		"transfer":         {"transfer --mint MINT (--to KEY | --account ADDR | --pool TITLE) --amount A", "transfer tokens", runTransfer},
		"balance":          {"balance --mint MINT [--owner KEY]", "show a token balance", runBalance},
		"initialize":       {"initialize --title T --payment-mint MINT --sale-mint MINT", "create a presale", runInitialize},
		"init-participant": {"init-participant --title T", "register the key in a presale", runInitParticipant},
		"purchase":         {"purchase --title T --amount A", "buy with A payment units", runPurchase},
		"claim":            {"claim --title T", "claim the matured locked balance", runClaim},
		"withdraw-payment": {"withdraw-payment --title T", "sweep the payment pool (owner)", runWithdraw(false)},
		"withdraw-sale":    {"withdraw-sale --title T", "sweep the sale pool (owner)", runWithdraw(true)},
		"set-lock":         {"set-lock --title T --participant KEY --amount A", "overwrite a locked balance (owner)", runSetLock},
		"show":             {"show --title T [--participant KEY]", "show a presale or participant entry", runShow},
		"solvency":         {"solvency --title T", "show pool balances against locked balances", runSolvency},
		"events":           {"events --title T [--limit N] [--follow]", "show recent ledger events", runEvents},
		"status":           {"status", "show server status", runStatus},
	}
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	if len(os.Args) < 2 || os.Args[1] == "help" || os.Args[1] == "-h" || os.Args[1] == "--help" {
		usage(os.Stdout)
		return
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := &env{out: os.Stdout, errOut: os.Stderr}
	if err := cmd.run(ctx, e, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: presalectl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s %s\n", name, commands[name].brief)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment: PRESALE_SERVER, PRESALE_KEYSTORE, PRESALE_PASSPHRASE, PRESALE_PROGRAM_ID")
}

// env carries the connection flags shared by every command.
type env struct {
	out    io.Writer
	errOut io.Writer

	server         string
	keystorePath   string
	passphraseFile string
	timeout        time.Duration
}

// flags returns a FlagSet for name with the shared flags registered.
func (e *env) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	fs.StringVar(&e.server, "server", envOr("PRESALE_SERVER", DefaultServer), "Presale server URL")
	fs.StringVar(&e.keystorePath, "keystore", os.Getenv("PRESALE_KEYSTORE"), "Encrypted key file")
	fs.StringVar(&e.passphraseFile, "passphrase-file", "", "File holding the keystore passphrase (default: PRESALE_PASSPHRASE)")
	fs.DurationVar(&e.timeout, "timeout", client.DefaultTimeout, "HTTP timeout")
	fs.Usage = func() {
		fmt.Fprintf(e.errOut, "Usage: presalectl %s\n\nFlags:\n", commands[name].usage)
		fs.PrintDefaults()
	}
	return fs
}

// passphrase reads the keystore passphrase from --passphrase-file or
// PRESALE_PASSPHRASE.
func (e *env) passphrase() ([]byte, error) {
	if e.passphraseFile != "" {
		data, err := os.ReadFile(e.passphraseFile)
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		return []byte(strings.TrimRight(string(data), "\r\n")), nil
	}
	if p, ok := os.LookupEnv("PRESALE_PASSPHRASE"); ok {
		return []byte(p), nil
	}
	return nil, errors.New("no passphrase: set PRESALE_PASSPHRASE or --passphrase-file")
}

func (e *env) key() (ed25519.PrivateKey, error) {
	if e.keystorePath == "" {
		return nil, errors.New("--keystore is required")
	}
	pass, err := e.passphrase()
	if err != nil {
		return nil, err
	}
	return keystore.Load(e.keystorePath, pass)
}

// client returns an unauthenticated client.
func (e *env) client() *client.Client {
	return client.New(e.server, client.WithTimeout(e.timeout))
}

// signingClient returns a client holding the keystore key.
func (e *env) signingClient() (*client.Client, error) {
	key, err := e.key()
	if err != nil {
		return nil, err
	}
	return client.New(e.server, client.WithTimeout(e.timeout), client.WithKey(key)), nil
}

func (e *env) print(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
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
