package solana

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// MintInfo is a decoded SPL token mint account.
type MintInfo struct {
	Address       PublicKey
	MintAuthority *PublicKey
	Supply        uint64
	Decimals      uint8
	Initialized   bool
}
