package api

import (
	"fmt"
	"net/http"
	"time"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/vesting"
)

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	signer, ok := s.decodeSigned(w, r, OpInitialize, &req)
	if !ok {
		return
	}

	p, err := s.engine.Initialize(r.Context(), signer, req.Title, req.Bumps, req.PaymentMint, req.SaleMint)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleInitParticipant(w http.ResponseWriter, r *http.Request) {
	var req InitParticipantRequest
	signer, ok := s.decodeSigned(w, r, OpInitParticipant, &req)
	if !ok {
		return
	}
	title, ok := pathTitle(w, r, req.Title)
	if !ok {
		return
	}

	entry, err := s.engine.InitParticipant(r.Context(), signer, title, req.Bump, req.IdentityA, req.IdentityB)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, participantResponse(entry, s.now()))
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	signer, ok := s.decodeSigned(w, r, OpPurchase, &req)
	if !ok {
		return
	}
	title, ok := pathTitle(w, r, req.Title)
	if !ok {
		return
	}

	res, err := s.engine.Purchase(r.Context(), signer, title, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	signer, ok := s.decodeSigned(w, r, OpClaim, &req)
	if !ok {
		return
	}
	title, ok := pathTitle(w, r, req.Title)
	if !ok {
		return
	}

	res, err := s.engine.Claim(r.Context(), signer, title)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWithdraw(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TitleRequest
		signer, ok := s.decodeSigned(w, r, op, &req)
		if !ok {
			return
		}
		title, ok := pathTitle(w, r, req.Title)
		if !ok {
			return
		}

		var (
			res *vesting.WithdrawResult
			err error
		)
		if op == OpWithdrawSale {
			res, err = s.engine.WithdrawSaleAsset(r.Context(), signer, title)
		} else {
			res, err = s.engine.WithdrawPaymentAsset(r.Context(), signer, title)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleSetLock(w http.ResponseWriter, r *http.Request) {
	var req SetLockRequest
	signer, ok := s.decodeSigned(w, r, OpSetLock, &req)
	if !ok {
		return
	}
	title, ok := pathTitle(w, r, req.Title)
	if !ok {
		return
	}

	entry, err := s.engine.SetParticipantLock(r.Context(), signer, title, req.Participant, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, participantResponse(entry, s.now()))
}

func (s *Server) handleGetPresale(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Presale(r.Context(), r.PathValue("title"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.engine.Addresses(r.PathValue("title"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addrs)
}

func (s *Server) handleSolvency(w http.ResponseWriter, r *http.Request) {
	sv, err := s.engine.Solvency(r.Context(), r.PathValue("title"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathKey(w, r, "owner")
	if !ok {
		return
	}
	entry, err := s.engine.Participant(r.Context(), r.PathValue("title"), owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, participantResponse(entry, s.now()))
}

func (s *Server) handleCreateMint(w http.ResponseWriter, r *http.Request) {
	var req CreateMintRequest
	signer, ok := s.decodeSigned(w, r, OpCreateMint, &req)
	if !ok {
		return
	}

	m, err := s.tokens.CreateMint(r.Context(), signer, req.Symbol, req.Decimals)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleImportMint(w http.ResponseWriter, r *http.Request) {
	var req ImportMintRequest
	if _, ok := s.decodeSigned(w, r, OpImportMint, &req); !ok {
		return
	}

	m, err := s.tokens.ImportMint(r.Context(), req.Address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetMint(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	m, err := s.tokens.Mint(r.Context(), mint)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMintTo(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	var req MintToRequest
	signer, ok := s.decodeSigned(w, r, OpMintTo, &req)
	if !ok {
		return
	}
	if req.Mint != mint {
		writeErrorCode(w, http.StatusBadRequest, "mint_mismatch",
			fmt.Sprintf("signed mint %s does not match %s", req.Mint, mint))
		return
	}

	a, err := s.tokens.MintTo(r.Context(), signer, mint, req.Owner, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeAccount(w, r, a)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	signer, ok := s.decodeSigned(w, r, OpTransfer, &req)
	if !ok {
		return
	}

	var err error
	if !req.Account.IsZero() {
		err = s.tokens.TransferToAccount(r.Context(), signer, req.Mint, req.Account, req.Amount)
	} else {
		err = s.tokens.Transfer(r.Context(), signer, req.Mint, req.Recipient, req.Amount)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.tokens.Account(r.Context(), signer.Key(), req.Mint)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeAccount(w, r, a)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathKey(w, r, "owner")
	if !ok {
		return
	}
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	a, err := s.tokens.Account(r.Context(), owner, mint)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeAccount(w, r, a)
}

// writeAccount writes a with its balance formatted in mint units.
func (s *Server) writeAccount(w http.ResponseWriter, r *http.Request, a *domain.TokenAccount) {
	m, err := s.tokens.Mint(r.Context(), a.Mint)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{
		TokenAccount: a,
		Balance:      domain.FormatAmount(a.Amount, m.Decimals),
	})
}

func participantResponse(p *domain.Participant, now time.Time) ParticipantResponse {
	lock := int64(vesting.LockDuration / time.Second)
	return ParticipantResponse{
		Participant: p,
		Deposit:     domain.FormatAmount(p.DepositAmount, vesting.PaymentDecimals),
		MaturesAt:   p.MaturesAt(lock),
		Matured:     p.LockedAmount > 0 && vesting.Matured(p.LastDepositTS, now.Unix()),
	}
}

func pathKey(w http.ResponseWriter, r *http.Request, name string) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(r.PathValue(name))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_address",
			fmt.Sprintf("invalid %s %q: %v", name, r.PathValue(name), err))
		return solana.PublicKey{}, false
	}
	return key, true
}
