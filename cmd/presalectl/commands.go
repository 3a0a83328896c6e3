package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"presale-vesting/internal/client"
	"presale-vesting/internal/domain"
	"presale-vesting/internal/keystore"
	"presale-vesting/internal/pda"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/vesting"
)

// keyFlag is a flag.Value holding a base58 identity.
type keyFlag struct {
	key solana.PublicKey
	set bool
}

func (k *keyFlag) String() string {
	if !k.set {
		return ""
	}
	return k.key.String()
}

func (k *keyFlag) Set(s string) error {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return err
	}
	k.key, k.set = key, true
	return nil
}

func required(fs *flag.FlagSet, names ...string) error {
	seen := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	for _, name := range names {
		if !seen[name] {
			return fmt.Errorf("--%s is required", name)
		}
	}
	return nil
}

func runKeygen(ctx context.Context, e *env, args []string) error {
	fs := e.flags("keygen")
	out := fs.String("out", "", "Keystore file to create")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "out"); err != nil {
		return err
	}
	pass, err := e.passphrase()
	if err != nil {
		return err
	}
	if len(pass) == 0 {
		return errors.New("refusing to encrypt with an empty passphrase")
	}

	priv, err := keystore.Generate()
	if err != nil {
		return err
	}
	f, err := keystore.Save(*out, priv, pass, keystore.Options{})
	if err != nil {
		return err
	}
	return e.print(map[string]string{"public_key": f.PublicKey, "keystore": *out})
}

func runPubkey(ctx context.Context, e *env, args []string) error {
	fs := e.flags("pubkey")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if e.keystorePath == "" {
		return errors.New("--keystore is required")
	}
	// The identity is stored in the clear; no passphrase needed.
	f, err := keystore.Read(e.keystorePath)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, f.PublicKey)
	return nil
}

// deriveOutput mirrors what the deploy tooling needs to initialize a presale.
type deriveOutput struct {
	ProgramID string `json:"program_id"`
	Title     string `json:"title"`
	*pda.PresaleAddresses
	Participant     *solana.PublicKey `json:"participant,omitempty"`
	ParticipantBump *uint8            `json:"participant_bump,omitempty"`
	IdentityA       string            `json:"identity_a,omitempty"`
	IdentityB       string            `json:"identity_b,omitempty"`
}

func runDerive(ctx context.Context, e *env, args []string) error {
	fs := e.flags("derive")
	title := fs.String("title", "", "Presale title (at most 10 bytes)")
	programIDStr := fs.String("program-id", envOr("PRESALE_PROGRAM_ID", ""), "Program ID; defaults to the server's")
	var owner keyFlag
	fs.Var(&owner, "owner", "Participant identity to derive an entry for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "title"); err != nil {
		return err
	}

	var programID solana.PublicKey
	if *programIDStr != "" {
		id, err := solana.PublicKeyFromBase58(*programIDStr)
		if err != nil {
			return fmt.Errorf("invalid --program-id: %w", err)
		}
		programID = id
	} else {
		status, err := e.client().Status(ctx)
		if err != nil {
			return fmt.Errorf("fetch program id: %w", err)
		}
		id, err := solana.PublicKeyFromBase58(status.ProgramID)
		if err != nil {
			return fmt.Errorf("server program id: %w", err)
		}
		programID = id
	}

	t, err := pda.PadTitle(*title)
	if err != nil {
		return err
	}
	d := pda.New(programID)
	addrs, err := d.PresaleAddresses(t)
	if err != nil {
		return err
	}

	out := deriveOutput{ProgramID: programID.String(), Title: t.String(), PresaleAddresses: addrs}
	if owner.set {
		addr, bump, err := d.ParticipantFor(t, owner.key)
		if err != nil {
			return err
		}
		out.Participant, out.ParticipantBump = &addr, &bump
		out.IdentityA, out.IdentityB = pda.SplitIdentity(owner.key)
	}
	return e.print(out)
}

func runCreateMint(ctx context.Context, e *env, args []string) error {
	fs := e.flags("create-mint")
	symbol := fs.String("symbol", "", "Mint symbol, unique per authority")
	decimals := fs.Uint("decimals", vesting.PaymentDecimals, "Decimal places")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "symbol"); err != nil {
		return err
	}
	if *decimals > 18 {
		return fmt.Errorf("decimals %d out of range", *decimals)
	}
	c, err := e.signingClient()
	if err != nil {
		return err
	}
	m, err := c.CreateMint(ctx, *symbol, uint8(*decimals))
	if err != nil {
		return err
	}
	return e.print(m)
}

func runImportMint(ctx context.Context, e *env, args []string) error {
	fs := e.flags("import-mint")
	var address keyFlag
	fs.Var(&address, "address", "On-chain mint address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "address"); err != nil {
		return err
	}
	c, err := e.signingClient()
	if err != nil {
		return err
	}
	m, err := c.ImportMint(ctx, address.key)
	if err != nil {
		return err
	}
	return e.print(m)
}

// parseAmount converts a display amount of mint into base units.
func parseAmount(ctx context.Context, c *client.Client, mint solana.PublicKey, amount string) (uint64, error) {
	m, err := c.Mint(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("fetch mint: %w", err)
	}
	return domain.ParseAmount(amount, m.Decimals)
}

func runMintTo(ctx context.Context, e *env, args []string) error {
	fs := e.flags("mint-to")
	var mint, owner keyFlag
	fs.Var(&mint, "mint", "Mint address")
	fs.Var(&owner, "owner", "Recipient identity")
	amount := fs.String("amount", "", "Amount in mint units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "mint", "owner", "amount"); err != nil {
		return err
	}
	c, err := e.signingClient()
	if err != nil {
		return err
	}
	base, err := parseAmount(ctx, c, mint.key, *amount)
	if err != nil {
		return err
	}
	a, err := c.MintTo(ctx, mint.key, owner.key, base)
	if err != nil {
		return err
	}
	return e.print(a)
}

func runTransfer(ctx context.Context, e *env, args []string) error {
	fs := e.flags("transfer")
	var mint, to, account keyFlag
	fs.Var(&mint, "mint", "Mint address")
	fs.Var(&to, "to", "Recipient identity")
	fs.Var(&account, "account", "Destination token account")
	pool := fs.String("pool", "", "Fund the custody account of this presale matching --mint")
	amount := fs.String("amount", "", "Amount in mint units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "mint", "amount"); err != nil {
		return err
	}
	targets := 0
	for _, set := range []bool{to.set, account.set, *pool != ""} {
		if set {
			targets++
		}
	}
	if targets != 1 {
		return errors.New("exactly one of --to, --account and --pool is required")
	}

	c, err := e.signingClient()
	if err != nil {
		return err
	}
	base, err := parseAmount(ctx, c, mint.key, *amount)
	if err != nil {
		return err
	}

	if *pool != "" {
		p, err := c.Presale(ctx, *pool)
		if err != nil {
			return err
		}
		switch mint.key {
		case p.SaleMint:
			account.key = p.PoolSale
		case p.PaymentMint:
			account.key = p.PoolPayment
		default:
			return fmt.Errorf("mint %s is not used by presale %s", mint.key, p.Key())
		}
		account.set = true
	}

	var res any
	if account.set {
		res, err = c.TransferToAccount(ctx, mint.key, account.key, base)
	} else {
		res, err = c.Transfer(ctx, mint.key, to.key, base)
	}
	if err != nil {
		return err
	}
	return e.print(res)
}

func runBalance(ctx context.Context, e *env, args []string) error {
	fs := e.flags("balance")
	var mint, owner keyFlag
	fs.Var(&mint, "mint", "Mint address")
	fs.Var(&owner, "owner", "Account owner; defaults to the keystore identity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "mint"); err != nil {
		return err
	}
	if !owner.set {
		c, err := e.signingClient()
		if err != nil {
			return err
		}
		if owner.key, err = c.PublicKey(); err != nil {
			return err
		}
	}
	a, err := e.client().Account(ctx, owner.key, mint.key)
	if err != nil {
		return err
	}
	return e.print(a)
}

func runInitialize(ctx context.Context, e *env, args []string) error {
	fs := e.flags("initialize")
	title := fs.String("title", "", "Presale title (at most 10 bytes)")
	var paymentMint, saleMint keyFlag
	fs.Var(&paymentMint, "payment-mint", "Payment asset mint (6 decimals)")
	fs.Var(&saleMint, "sale-mint", "Sale asset mint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "title", "payment-mint", "sale-mint"); err != nil {
		return err
	}
	c, err := e.signingClient()
	if err != nil {
		return err
	}

	addrs, err := c.Addresses(ctx, *title)
	if err != nil {
		return err
	}
	bumps := domain.PoolBumps{
		Presale:     addrs.PresaleBump,
		PoolPayment: addrs.PoolPaymentBump,
		PoolSale:    addrs.PoolSaleBump,
	}
	p, err := c.Initialize(ctx, *title, bumps, paymentMint.key, saleMint.key)
	if err != nil {
		return err
	}
	return e.print(p)
}

func runInitParticipant(ctx context.Context, e *env, args []string) error {
	fs := e.flags("init-participant")
	title := fs.String("title", "", "Presale title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "title"); err != nil {
		return err
	}
	c, err := e.signingClient()
	if err != nil {
		return err
	}
	owner, err := c.PublicKey()
	if err != nil {
		return err
	}
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}
	programID, err := solana.PublicKeyFromBase58(status.ProgramID)
	if err != nil {
		return fmt.Errorf("server program id: %w", err)
	}
	t, err := pda.PadTitle(*title)
	if err != nil {
		return err
	}
	_, bump, err := pda.New(programID).ParticipantFor(t, owner)
	if err != nil {
		return err
	}

	p, err := c.InitParticipant(ctx, *title, bump)
	if err != nil {
		return err
	}
	return e.print(p)
}

func runPurchase(ctx context.Context, e *env, args []string) error {
	fs := e.flags("purchase")
	title := fs.String("title", "", "Presale title")
	amount := fs.String("amount", "", "Payment amount in payment asset units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "title", "amount"); err != nil {
		return err
	}
	base, err := domain.ParseAmount(*amount, vesting.PaymentDecimals)
	if err != nil {
		return err
	}
	c, err := e.signingClient()
	if err != nil {
		return err
	}
	res, err := c.Purchase(ctx, *title, base)
	if err != nil {
		return err
	}
	return e.print(res)
}

func runClaim(ctx context.Context, e *env, args []string) error {
	fs := e.flags("claim")
	title := fs.String("title", "", "Presale title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "title"); err != nil {
		return err
	}
	c, err := e.signingClient()
	if err != nil {
		return err
	}
	res, err := c.Claim(ctx, *title)
	if err != nil {
		return err
	}
	return e.print(res)
}

func runWithdraw(sale bool) func(context.Context, *env, []string) error {
	name := "withdraw-payment"
	if sale {
		name = "withdraw-sale"
	}
	return func(ctx context.Context, e *env, args []string) error {
		fs := e.flags(name)
		title := fs.String("title", "", "Presale title")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required(fs, "title"); err != nil {
			return err
		}
		c, err := e.signingClient()
		if err != nil {
			return err
		}
		var res any
		if sale {
			res, err = c.WithdrawSale(ctx, *title)
		} else {
			res, err = c.WithdrawPayment(ctx, *title)
		}
		if err != nil {
			return err
		}
		return e.print(res)
	}
}

func runSetLock(ctx context.Context, e *env, args []string) error {
	fs := e.flags("set-lock")
	title := fs.String("title", "", "Presale title")
	var participant keyFlag
	fs.Var(&participant, "participant", "Participant identity")
	amount := fs.String("amount", "", "Locked amount in sale asset units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "title", "participant", "amount"); err != nil {
		return err
	}
	c, err := e.signingClient()
	if err != nil {
		return err
	}
	p, err := c.Presale(ctx, *title)
	if err != nil {
		return err
	}
	base, err := parseAmount(ctx, c, p.SaleMint, *amount)
	if err != nil {
		return err
	}
	res, err := c.SetLock(ctx, *title, participant.key, base)
	if err != nil {
		return err
	}
	return e.print(res)
}

func runShow(ctx context.Context, e *env, args []string) error {
	fs := e.flags("show")
	title := fs.String("title", "", "Presale title")
	var participant keyFlag
	fs.Var(&participant, "participant", "Show this participant's entry instead of the presale")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "title"); err != nil {
		return err
	}
	c := e.client()
	if participant.set {
		p, err := c.Participant(ctx, *title, participant.key)
		if err != nil {
			return err
		}
		return e.print(p)
	}
	p, err := c.Presale(ctx, *title)
	if err != nil {
		return err
	}
	return e.print(p)
}

func runSolvency(ctx context.Context, e *env, args []string) error {
	fs := e.flags("solvency")
	title := fs.String("title", "", "Presale title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "title"); err != nil {
		return err
	}
	s, err := e.client().Solvency(ctx, *title)
	if err != nil {
		return err
	}
	return e.print(s)
}

func runEvents(ctx context.Context, e *env, args []string) error {
	fs := e.flags("events")
	title := fs.String("title", "", "Presale title")
	limit := fs.Int("limit", 20, "Number of recent events")
	follow := fs.Bool("follow", false, "Stream new events until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "title"); err != nil {
		return err
	}
	c := e.client()

	history, err := c.Events(ctx, *title, *limit)
	switch {
	case client.IsCode(err, "unavailable") && *follow:
		fmt.Fprintln(e.errOut, "event history unavailable; streaming only")
	case err != nil:
		return err
	}
	// Oldest first, so a follow continues in order.
	for i := len(history) - 1; i >= 0; i-- {
		if err := e.print(history[i]); err != nil {
			return err
		}
	}
	if !*follow {
		return nil
	}

	stream, err := c.Subscribe(ctx, *title, nil)
	if err != nil {
		return err
	}
	for ev := range stream {
		if err := e.print(ev); err != nil {
			return err
		}
	}
	return nil
}

func runStatus(ctx context.Context, e *env, args []string) error {
	fs := e.flags("status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := e.client().Status(ctx)
	if err != nil {
		return err
	}
	return e.print(s)
}
