package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale-vesting/internal/pda"
	"presale-vesting/internal/solana"
)

const testProgramID = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"

func runCmd(t *testing.T, name string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	e := &env{out: &out, errOut: &errOut}
	err := commands[name].run(context.Background(), e, args)
	return out.String(), err
}

func TestKeygenAndPubkey(t *testing.T) {
	t.Setenv("PRESALE_PASSPHRASE", "correct horse")
	path := filepath.Join(t.TempDir(), "owner.json")

	out, err := runCmd(t, "keygen", "--out", path)
	require.NoError(t, err)
	var created map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	_, err = solana.PublicKeyFromBase58(created["public_key"])
	require.NoError(t, err)

	out, err = runCmd(t, "pubkey", "--keystore", path)
	require.NoError(t, err)
	assert.Equal(t, created["public_key"], strings.TrimSpace(out))

	_, err = runCmd(t, "keygen", "--out", path)
	assert.Error(t, err, "existing keystore must not be overwritten")
}

func TestKeygen_RequiresPassphrase(t *testing.T) {
	t.Setenv("PRESALE_PASSPHRASE", "")
	_, err := runCmd(t, "keygen", "--out", filepath.Join(t.TempDir(), "k.json"))
	assert.ErrorContains(t, err, "empty passphrase")

	_, err = runCmd(t, "keygen")
	assert.ErrorContains(t, err, "--out is required")
}

func TestDerive_Offline(t *testing.T) {
	owner := solana.MustPublicKey("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	out, err := runCmd(t, "derive", "--title", "SALE", "--program-id", testProgramID, "--owner", owner.String())
	require.NoError(t, err)

	var got deriveOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	title, err := pda.PadTitle("SALE")
	require.NoError(t, err)
	d := pda.New(solana.MustPublicKey(testProgramID))
	want, err := d.PresaleAddresses(title)
	require.NoError(t, err)
	addr, bump, err := d.ParticipantFor(title, owner)
	require.NoError(t, err)

	require.NotNil(t, got.PresaleAddresses)
	assert.Equal(t, *want, *got.PresaleAddresses)
	require.NotNil(t, got.Participant)
	assert.Equal(t, addr, *got.Participant)
	assert.Equal(t, bump, *got.ParticipantBump)
	idA, idB := pda.SplitIdentity(owner)
	assert.Equal(t, idA+idB, got.IdentityA+got.IdentityB)
}

func TestDerive_InvalidTitle(t *testing.T) {
	_, err := runCmd(t, "derive", "--title", "MUCH TOO LONG", "--program-id", testProgramID)
	assert.Error(t, err)
}

func TestTransfer_RequiresOneTarget(t *testing.T) {
	mint := "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	_, err := runCmd(t, "transfer", "--mint", mint, "--amount", "1")
	assert.ErrorContains(t, err, "exactly one of")

	_, err = runCmd(t, "transfer", "--mint", mint, "--amount", "1", "--to", mint, "--pool", "SALE")
	assert.ErrorContains(t, err, "exactly one of")
}
