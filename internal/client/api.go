package client

import (
	"context"
	"fmt"
	"net/url"

	"presale-vesting/internal/api"
	"presale-vesting/internal/auth"
	"presale-vesting/internal/domain"
	"presale-vesting/internal/pda"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/vesting"
)

func presalePath(title string, parts ...string) string {
	p := "/v1/presales/" + url.PathEscape(title)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// CreateMint creates a mint whose authority is the client key.
func (c *Client) CreateMint(ctx context.Context, symbol string, decimals uint8) (*domain.Mint, error) {
	var m domain.Mint
	req := api.CreateMintRequest{Symbol: symbol, Decimals: decimals}
	if err := c.signed(ctx, api.OpCreateMint, "/v1/mints", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ImportMint registers a mint read from the chain.
func (c *Client) ImportMint(ctx context.Context, address solana.PublicKey) (*domain.Mint, error) {
	var m domain.Mint
	req := api.ImportMintRequest{Address: address}
	if err := c.signed(ctx, api.OpImportMint, "/v1/mints/import", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Mint returns a registered mint.
func (c *Client) Mint(ctx context.Context, address solana.PublicKey) (*domain.Mint, error) {
	var m domain.Mint
	if err := c.get(ctx, "/v1/mints/"+address.String(), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MintTo credits amount base units to owner's associated account.
func (c *Client) MintTo(ctx context.Context, mint, owner solana.PublicKey, amount uint64) (*api.AccountResponse, error) {
	var a api.AccountResponse
	req := api.MintToRequest{Mint: mint, Owner: owner, Amount: amount}
	if err := c.signed(ctx, api.OpMintTo, "/v1/mints/"+mint.String()+"/mint-to", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Transfer moves amount from the client's account to recipient's associated
// account. It returns the sender's account after the transfer.
func (c *Client) Transfer(ctx context.Context, mint, recipient solana.PublicKey, amount uint64) (*api.AccountResponse, error) {
	return c.transfer(ctx, api.TransferRequest{Mint: mint, Recipient: recipient, Amount: amount})
}

// TransferToAccount moves amount from the client's account to an existing
// token account, such as a presale custody account.
func (c *Client) TransferToAccount(ctx context.Context, mint, account solana.PublicKey, amount uint64) (*api.AccountResponse, error) {
	return c.transfer(ctx, api.TransferRequest{Mint: mint, Account: account, Amount: amount})
}

func (c *Client) transfer(ctx context.Context, req api.TransferRequest) (*api.AccountResponse, error) {
	var a api.AccountResponse
	if err := c.signed(ctx, api.OpTransfer, "/v1/transfer", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Account returns owner's associated account for mint.
func (c *Client) Account(ctx context.Context, owner, mint solana.PublicKey) (*api.AccountResponse, error) {
	var a api.AccountResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/accounts/%s/%s", owner, mint), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Initialize creates a presale owned by the client key.
func (c *Client) Initialize(ctx context.Context, title string, bumps domain.PoolBumps, paymentMint, saleMint solana.PublicKey) (*domain.Presale, error) {
	var p domain.Presale
	req := api.InitializeRequest{Title: title, Bumps: bumps, PaymentMint: paymentMint, SaleMint: saleMint}
	if err := c.signed(ctx, api.OpInitialize, "/v1/presales", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// InitParticipant registers the client key in a presale using the canonical
// identity split.
func (c *Client) InitParticipant(ctx context.Context, title string, bump uint8) (*api.ParticipantResponse, error) {
	pub, err := c.PublicKey()
	if err != nil {
		return nil, err
	}
	idA, idB := pda.SplitIdentity(pub)
	var p api.ParticipantResponse
	req := api.InitParticipantRequest{Title: title, Bump: bump, IdentityA: idA, IdentityB: idB}
	if err := c.signed(ctx, api.OpInitParticipant, presalePath(title, "participants"), req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Purchase pays amount payment base units into the presale.
func (c *Client) Purchase(ctx context.Context, title string, amount uint64) (*vesting.PurchaseResult, error) {
	var res vesting.PurchaseResult
	req := api.PurchaseRequest{Title: title, Amount: amount}
	if err := c.signed(ctx, api.OpPurchase, presalePath(title, "purchase"), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Claim releases the client's matured locked balance.
func (c *Client) Claim(ctx context.Context, title string) (*vesting.ClaimResult, error) {
	var res vesting.ClaimResult
	if err := c.signed(ctx, api.OpClaim, presalePath(title, "claim"), api.TitleRequest{Title: title}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// WithdrawPayment sweeps the payment pool to the owner.
func (c *Client) WithdrawPayment(ctx context.Context, title string) (*vesting.WithdrawResult, error) {
	var res vesting.WithdrawResult
	if err := c.signed(ctx, api.OpWithdrawPayment, presalePath(title, "withdraw", "payment"), api.TitleRequest{Title: title}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// WithdrawSale sweeps the sale pool to the owner.
func (c *Client) WithdrawSale(ctx context.Context, title string) (*vesting.WithdrawResult, error) {
	var res vesting.WithdrawResult
	if err := c.signed(ctx, api.OpWithdrawSale, presalePath(title, "withdraw", "sale"), api.TitleRequest{Title: title}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetLock overwrites a participant's locked balance. Owner only.
func (c *Client) SetLock(ctx context.Context, title string, participant solana.PublicKey, amount uint64) (*api.ParticipantResponse, error) {
	var p api.ParticipantResponse
	req := api.SetLockRequest{Title: title, Participant: participant, Amount: amount}
	if err := c.signed(ctx, api.OpSetLock, presalePath(title, "locks"), req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Presale returns a presale record.
func (c *Client) Presale(ctx context.Context, title string) (*domain.Presale, error) {
	var p domain.Presale
	if err := c.get(ctx, presalePath(title), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Addresses returns the derived addresses and canonical bumps of a presale.
// The presale need not exist.
func (c *Client) Addresses(ctx context.Context, title string) (*pda.PresaleAddresses, error) {
	var a pda.PresaleAddresses
	if err := c.get(ctx, presalePath(title, "addresses"), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Participant returns owner's entry in a presale.
func (c *Client) Participant(ctx context.Context, title string, owner solana.PublicKey) (*api.ParticipantResponse, error) {
	var p api.ParticipantResponse
	if err := c.get(ctx, presalePath(title, "participants", owner.String()), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Solvency returns pool balances against outstanding locked balances.
func (c *Client) Solvency(ctx context.Context, title string) (*vesting.Solvency, error) {
	var s vesting.Solvency
	if err := c.get(ctx, presalePath(title, "solvency"), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Events returns up to limit recent events of a presale, newest first.
// A zero limit uses the server default.
func (c *Client) Events(ctx context.Context, title string, limit int) ([]*domain.LedgerEvent, error) {
	path := presalePath(title, "events")
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var events []*domain.LedgerEvent
	if err := c.get(ctx, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Status returns the server status.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var s api.StatusResponse
	if err := c.get(ctx, "/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PublicKey returns the identity of the client key.
func (c *Client) PublicKey() (solana.PublicKey, error) {
	if c.key == nil {
		return solana.PublicKey{}, ErrNoKey
	}
	signer, err := auth.FromPrivateKey(c.key)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return signer.Key(), nil
}
