package pda

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"presale-vesting/internal/solana"
)

var testProgram = solana.MustPublicKey("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

func newOwner(t *testing.T) solana.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	owner, err := solana.PublicKeyFromBytes(pub)
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	return owner
}

func TestPadTitle(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "SALE", want: "SALE"},
		{in: "  SALE\t", want: "SALE"},
		{in: "0123456789", want: "0123456789"},
		{in: "", wantErr: ErrEmptyTitle},
		{in: " \r\n ", wantErr: ErrEmptyTitle},
		{in: "0123456789A", wantErr: ErrTitleTooLong},
		{in: "Apool_wen", wantErr: ErrReservedTitle},
		{in: "pool_usdc ", wantErr: ErrReservedTitle},
		{in: "pool_wenX", want: "pool_wenX"},
	}

	for _, tc := range tests {
		title, err := PadTitle(tc.in)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("PadTitle(%q) error = %v, want %v", tc.in, err, tc.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("PadTitle(%q): %v", tc.in, err)
			continue
		}
		if title.String() != tc.want {
			t.Errorf("PadTitle(%q) = %q, want %q", tc.in, title.String(), tc.want)
		}
		for i := len(tc.want); i < TitleSize; i++ {
			if title[i] != ' ' {
				t.Errorf("PadTitle(%q) byte %d = %q, want space", tc.in, i, title[i])
			}
		}
	}
}

func TestTrimASCIISpace_KeepsVerticalTab(t *testing.T) {
	got := string(TrimASCIISpace([]byte("\vA\v ")))
	if got != "\vA\v" {
		t.Errorf("TrimASCIISpace = %q, want %q", got, "\vA\v")
	}
}

func TestTitle_TextRoundTrip(t *testing.T) {
	var title Title
	if err := title.UnmarshalText([]byte("SALE")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	text, err := title.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(text) != "SALE" {
		t.Errorf("MarshalText = %q, want SALE", text)
	}
}

func TestDeriver_PaddingDoesNotChangeAddress(t *testing.T) {
	d := New(testProgram)

	a, _ := PadTitle("SALE")
	b, _ := PadTitle("SALE      ")

	addrA, bumpA, err := d.Presale(a)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	addrB, bumpB, err := d.Presale(b)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if addrA != addrB || bumpA != bumpB {
		t.Errorf("padded title derived %s/%d, want %s/%d", addrB, bumpB, addrA, bumpA)
	}

	direct, _, err := solana.FindProgramAddress([][]byte{[]byte("SALE")}, testProgram)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	if direct != addrA {
		t.Errorf("presale address = %s, want derivation from trimmed seed %s", addrA, direct)
	}
}

func TestDeriver_PresaleAddressesDistinct(t *testing.T) {
	d := New(testProgram)
	title, _ := PadTitle("SALE")

	addrs, err := d.PresaleAddresses(title)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	seen := map[solana.PublicKey]string{}
	for name, addr := range map[string]solana.PublicKey{
		"presale": addrs.Presale,
		"payment": addrs.PoolPayment,
		"sale":    addrs.PoolSale,
	} {
		if other, ok := seen[addr]; ok {
			t.Errorf("%s and %s share address %s", name, other, addr)
		}
		seen[addr] = name
	}

	if _, err := d.VerifyBump(PoolSaleSeeds(title), addrs.PoolSaleBump); err != nil {
		t.Errorf("verify canonical sale bump: %v", err)
	}
}

func TestDeriver_PoolSeedsMatchDeployedProgram(t *testing.T) {
	d := New(testProgram)
	title, _ := PadTitle("SALE")

	addrs, err := d.PresaleAddresses(title)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	for tag, got := range map[string]solana.PublicKey{
		"pool_usdc": addrs.PoolPayment,
		"pool_wen":  addrs.PoolSale,
	} {
		want, _, err := solana.FindProgramAddress([][]byte{[]byte("SALE"), []byte(tag)}, testProgram)
		if err != nil {
			t.Fatalf("derive %s: %v", tag, err)
		}
		if got != want {
			t.Errorf("%s pool = %s, want %s", tag, got, want)
		}
	}
}

// Seeds are concatenated before hashing, so a title that ends in a role tag
// would derive another presale's pool.
func TestPadTitle_RoleTagSuffixWouldCollide(t *testing.T) {
	joined, _, err := solana.FindProgramAddress([][]byte{[]byte("Apool_wen")}, testProgram)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	title, err := PadTitle("A")
	if err != nil {
		t.Fatalf("pad: %v", err)
	}
	addrs, err := New(testProgram).PresaleAddresses(title)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if joined != addrs.PoolSale {
		t.Fatalf("expected the raw seeds to collide with the sale pool of %q", "A")
	}

	if _, err := PadTitle("Apool_wen"); !errors.Is(err, ErrReservedTitle) {
		t.Errorf("PadTitle(%q) error = %v, want ErrReservedTitle", "Apool_wen", err)
	}
}

func TestDeriver_VerifyBumpMismatch(t *testing.T) {
	d := New(testProgram)
	title, _ := PadTitle("SALE")

	_, bump, err := d.Presale(title)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if _, err := d.VerifyBump(PresaleSeeds(title), bump-1); !errors.Is(err, ErrBumpMismatch) {
		t.Errorf("expected ErrBumpMismatch, got %v", err)
	}
}

func TestDeriver_ParticipantFor(t *testing.T) {
	d := New(testProgram)
	title, _ := PadTitle("SALE")
	owner := newOwner(t)

	a, b := SplitIdentity(owner)
	if a+b != owner.String() {
		t.Fatalf("split %q+%q != %q", a, b, owner.String())
	}
	if len(a) > solana.MaxSeedLength || len(b) > solana.MaxSeedLength {
		t.Fatalf("identity fragments exceed seed length: %d, %d", len(a), len(b))
	}

	viaOwner, bump1, err := d.ParticipantFor(title, owner)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	viaSeeds, bump2, err := d.Participant(title, a, b)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if viaOwner != viaSeeds || bump1 != bump2 {
		t.Errorf("ParticipantFor = %s/%d, Participant = %s/%d", viaOwner, bump1, viaSeeds, bump2)
	}

	other, _, err := d.ParticipantFor(title, newOwner(t))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if other == viaOwner {
		t.Errorf("distinct owners derived the same participant address")
	}
}

func TestSigner_Verify(t *testing.T) {
	d := New(testProgram)
	title, _ := PadTitle("SALE")

	addr, bump, err := d.Presale(title)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	signer, err := d.PresaleSigner(title, bump)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if signer.Address() != addr {
		t.Errorf("signer address = %s, want %s", signer.Address(), addr)
	}
	if err := signer.Verify(); err != nil {
		t.Errorf("verify: %v", err)
	}

	var zero Signer
	if err := zero.Verify(); !errors.Is(err, ErrInvalidSigner) {
		t.Errorf("zero signer verify = %v, want ErrInvalidSigner", err)
	}

	// Under another namespace the same seeds yield a different address.
	other, err := New(solana.TokenProgramID).PresaleSigner(title, bump)
	if err == nil && other.Address() == addr {
		t.Errorf("signer addresses collide across namespaces")
	}
}
