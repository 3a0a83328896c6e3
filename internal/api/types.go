package api

import (
	"presale-vesting/internal/domain"
	"presale-vesting/internal/solana"
)

// Operation names covered by request signatures.
const (
	OpInitialize      = "initialize"
	OpInitParticipant = "init_participant"
	OpPurchase        = "purchase"
	OpClaim           = "claim"
	OpWithdrawPayment = "withdraw_payment"
	OpWithdrawSale    = "withdraw_sale"
	OpSetLock         = "set_lock"
	OpCreateMint      = "create_mint"
	OpMintTo          = "mint_to"
	OpTransfer        = "transfer"
	OpImportMint      = "import_mint"
)

// Presale operations carry the title in the signed payload so a signature
// cannot be replayed against another presale.

// InitializeRequest is the payload of OpInitialize.
type InitializeRequest struct {
	Title       string           `json:"title"`
	Bumps       domain.PoolBumps `json:"bumps"`
	PaymentMint solana.PublicKey `json:"payment_mint"`
	SaleMint    solana.PublicKey `json:"sale_mint"`
}

// InitParticipantRequest is the payload of OpInitParticipant.
type InitParticipantRequest struct {
	Title     string `json:"title"`
	Bump      uint8  `json:"bump"`
	IdentityA string `json:"identity_a"`
	IdentityB string `json:"identity_b"`
}

// PurchaseRequest is the payload of OpPurchase. Amount is in payment base units.
type PurchaseRequest struct {
	Title  string `json:"title"`
	Amount uint64 `json:"amount"`
}

// TitleRequest is the payload of OpClaim, OpWithdrawPayment and OpWithdrawSale.
type TitleRequest struct {
	Title string `json:"title"`
}

// SetLockRequest is the payload of OpSetLock.
type SetLockRequest struct {
	Title       string           `json:"title"`
	Participant solana.PublicKey `json:"participant"` // participant identity
	Amount      uint64           `json:"amount"`
}

// CreateMintRequest is the payload of OpCreateMint.
type CreateMintRequest struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// MintToRequest is the payload of OpMintTo.
type MintToRequest struct {
	Mint   solana.PublicKey `json:"mint"`
	Owner  solana.PublicKey `json:"owner"`
	Amount uint64           `json:"amount"`
}

// TransferRequest is the payload of OpTransfer. A non-zero Account sends to
// that token account directly; otherwise the recipient's associated account
// receives the amount.
type TransferRequest struct {
	Mint      solana.PublicKey `json:"mint"`
	Recipient solana.PublicKey `json:"recipient,omitzero"`
	Account   solana.PublicKey `json:"account,omitzero"`
	Amount    uint64           `json:"amount"`
}

// ImportMintRequest is the payload of OpImportMint.
type ImportMintRequest struct {
	Address solana.PublicKey `json:"address"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ParticipantResponse is a participant entry with its maturity schedule.
type ParticipantResponse struct {
	*domain.Participant
	Deposit   string `json:"deposit"` // DepositAmount in payment asset units
	MaturesAt int64  `json:"matures_at"`
	Matured   bool   `json:"matured"`
}

// AccountResponse is a token account with its display balance.
type AccountResponse struct {
	*domain.TokenAccount
	Balance string `json:"balance"` // Amount in mint units
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	ProgramID string `json:"program_id"`
	Store     string `json:"store"`
	Events    bool   `json:"events"`
	WSClients int    `json:"ws_clients"`
}
