// Package keystore stores ed25519 identity keys in passphrase-encrypted JSON
// files. The passphrase is stretched with argon2id and the seed is sealed
// with AES-256-GCM.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"

	"presale-vesting/internal/auth"
)

// Version is the file format written by Save.
const Version = 1

// Default argon2id cost parameters.
const (
	DefaultTime    = 3
	DefaultMemory  = 64 * 1024 // KiB
	DefaultThreads = 4
)

const (
	saltSize = 16
	keySize  = 32
)

var (
	// ErrWrongPassphrase is returned when the file cannot be opened with the
	// given passphrase, or has been tampered with.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted keystore")
	// ErrUnsupportedVersion is returned for unknown file formats.
	ErrUnsupportedVersion = errors.New("unsupported keystore version")
)

// KDFParams are the argon2id parameters stored with each file.
type KDFParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
	Salt    string `json:"salt"` // base64
}

// File is the on-disk form of one key.
type File struct {
	Version    int       `json:"version"`
	PublicKey  string    `json:"public_key"` // base58 identity, readable without the passphrase
	KDF        KDFParams `json:"kdf"`
	Nonce      string    `json:"nonce"`      // base64
	Ciphertext string    `json:"ciphertext"` // base64, sealed seed
}

// Options tune encryption cost. Zero fields take the defaults.
type Options struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

func (o Options) withDefaults() Options {
	if o.Time == 0 {
		o.Time = DefaultTime
	}
	if o.Memory == 0 {
		o.Memory = DefaultMemory
	}
	if o.Threads == 0 {
		o.Threads = DefaultThreads
	}
	return o
}

// Generate creates a fresh key.
func Generate() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return priv, nil
}

// Encrypt seals priv under passphrase.
func Encrypt(priv ed25519.PrivateKey, passphrase []byte, opts Options) (*File, error) {
	signer, err := auth.FromPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	params := KDFParams{
		Time:    opts.Time,
		Memory:  opts.Memory,
		Threads: opts.Threads,
		Salt:    base64.StdEncoding.EncodeToString(salt),
	}
	pub := signer.Key().String()

	aead, err := newAEAD(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, priv.Seed(), []byte(pub))

	return &File{
		Version:    Version,
		PublicKey:  pub,
		KDF:        params,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

// Decrypt opens f with passphrase. The public key is authenticated as
// additional data, so a file whose identity was edited fails to open.
func Decrypt(f *File, passphrase []byte) (ed25519.PrivateKey, error) {
	if f.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)
	}
	salt, err := base64.StdEncoding.DecodeString(f.KDF.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(f.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(f.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	aead, err := newAEAD(passphrase, salt, f.KDF)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	seed, err := aead.Open(nil, nonce, sealed, []byte(f.PublicKey))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, ErrWrongPassphrase
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func newAEAD(passphrase, salt []byte, p KDFParams) (cipher.AEAD, error) {
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
		return nil, fmt.Errorf("invalid kdf parameters %+v", p)
	}
	key := argon2.IDKey(passphrase, salt, p.Time, p.Memory, p.Threads, keySize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	return cipher.NewGCM(block)
}

// Save encrypts priv and writes it to path with owner-only permissions. An
// existing file is not overwritten.
func Save(path string, priv ed25519.PrivateKey, passphrase []byte, opts Options) (*File, error) {
	f, err := Encrypt(priv, passphrase, opts)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal keystore: %w", err)
	}

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create keystore: %w", err)
	}
	if _, err := out.Write(append(data, '\n')); err != nil {
		out.Close()
		return nil, fmt.Errorf("write keystore: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close keystore: %w", err)
	}
	return f, nil
}

// Read parses the keystore at path without decrypting it.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse keystore %s: %w", path, err)
	}
	return &f, nil
}

// Load reads and decrypts the keystore at path.
func Load(path string, passphrase []byte) (ed25519.PrivateKey, error) {
	f, err := Read(path)
	if err != nil {
		return nil, err
	}
	return Decrypt(f, passphrase)
}
