// Package backup provides encrypted export and restore of the app lock
// state, for transferring a configuration between installs.
//
// Security:
//   - Payload encrypted with AES-256-GCM
//   - Key derived with Argon2id from a fresh per-backup salt
//   - Outer HMAC-SHA256 covers header + ciphertext for tamper detection
//   - Sensitive buffers cleared with SecureWipe
package backup

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/forest6511/applockctl/pkg/kdf"
	"github.com/forest6511/applockctl/pkg/store"
)

// hmacLength is the length of the trailing HMAC-SHA256 in bytes.
const hmacLength = 32

// RestoreResult reports what a restore wrote.
type RestoreResult struct {
	ConfigRestored  int
	SecretsRestored int
	CreatedAt       time.Time
}

// Export writes an encrypted backup of both storage tiers under dir.
func Export(ctx context.Context, dir string, password []byte, w io.Writer) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}

	cfg, err := store.OpenConfig(dir)
	if err != nil {
		return err
	}
	secrets, err := store.OpenSecret(dir)
	if err != nil {
		return err
	}
	defer secrets.Close()

	secretValues, err := secrets.All(ctx)
	if err != nil {
		return err
	}
	payload := &Payload{
		Config:  cfg.All(),
		Secrets: secretValues,
	}

	salt, err := GenerateSalt()
	if err != nil {
		return err
	}
	encKey, macKey, err := DeriveBackupKeys(password, salt, kdf.InteractiveOpsLimit, kdf.InteractiveMemLimit)
	if err != nil {
		return err
	}
	defer kdf.SecureWipe(encKey)
	defer kdf.SecureWipe(macKey)

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	defer kdf.SecureWipe(payloadBytes)

	ciphertext, err := EncryptPayload(payloadBytes, encKey)
	if err != nil {
		return err
	}

	header := &Header{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		KDFParams: KDFParams{
			Salt:        salt,
			Memory:      kdf.InteractiveMemLimit,
			Iterations:  kdf.InteractiveOpsLimit,
			Parallelism: kdf.Threads,
		},
		EntryCount:   len(payload.Config) + len(payload.Secrets),
		ChecksumAlgo: "sha256",
	}

	// Assemble in memory first so the HMAC covers header and ciphertext.
	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ciphertext))); err != nil {
		return fmt.Errorf("failed to write ciphertext length: %w", err)
	}
	if _, err := buf.Write(ciphertext); err != nil {
		return fmt.Errorf("failed to write ciphertext: %w", err)
	}

	mac := ComputeHMAC(buf.Bytes(), macKey)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	if _, err := w.Write(mac); err != nil {
		return fmt.Errorf("failed to write HMAC: %w", err)
	}
	return nil
}

// Restore replaces both storage tiers under dir with the backup's
// contents. The target state is wiped first, so a restore is all or
// nothing from the caller's point of view.
func Restore(ctx context.Context, dir string, password []byte, r io.Reader) (*RestoreResult, error) {
	header, payload, err := verifyAndDecrypt(r, password)
	if err != nil {
		return nil, err
	}

	cfg, err := store.OpenConfig(dir)
	if err != nil {
		return nil, err
	}
	secrets, err := store.OpenSecret(dir)
	if err != nil {
		return nil, err
	}
	defer secrets.Close()

	if err := cfg.Clear(); err != nil {
		return nil, err
	}
	if len(payload.Config) > 0 {
		if err := cfg.SetMany(payload.Config); err != nil {
			return nil, err
		}
	}

	if err := secrets.DeleteAll(ctx); err != nil {
		return nil, err
	}
	if len(payload.Secrets) > 0 {
		if err := secrets.SetMany(ctx, payload.Secrets); err != nil {
			return nil, err
		}
	}

	return &RestoreResult{
		ConfigRestored:  len(payload.Config),
		SecretsRestored: len(payload.Secrets),
		CreatedAt:       header.CreatedAt,
	}, nil
}

// Verify checks backup integrity without restoring.
func Verify(r io.Reader, password []byte) (*Header, error) {
	header, _, err := verifyAndDecrypt(r, password)
	return header, err
}

func verifyAndDecrypt(r io.Reader, password []byte) (*Header, *Payload, error) {
	if len(password) == 0 {
		return nil, nil, ErrEmptyPassword
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read backup: %w", err)
	}
	if len(data) < hmacLength {
		return nil, nil, ErrTruncated
	}

	body := data[:len(data)-hmacLength]
	mac := data[len(data)-hmacLength:]

	br := bytes.NewReader(body)
	header, err := ReadHeader(br)
	if err != nil {
		return nil, nil, err
	}

	encKey, macKey, err := DeriveBackupKeys(password, header.KDFParams.Salt,
		header.KDFParams.Iterations, header.KDFParams.Memory)
	if err != nil {
		return nil, nil, err
	}
	defer kdf.SecureWipe(encKey)
	defer kdf.SecureWipe(macKey)

	// Integrity first: a wrong password fails here too, but so does any
	// bit flip in the clear-text header.
	if !VerifyHMAC(body, mac, macKey) {
		return nil, nil, ErrIntegrityFailed
	}

	var ciphertextLen uint32
	if err := binary.Read(br, binary.BigEndian, &ciphertextLen); err != nil {
		return nil, nil, ErrTruncated
	}
	if int(ciphertextLen) != br.Len() {
		return nil, nil, ErrTruncated
	}
	ciphertext := make([]byte, ciphertextLen)
	if _, err := io.ReadFull(br, ciphertext); err != nil {
		return nil, nil, ErrTruncated
	}

	plaintext, err := DecryptPayload(ciphertext, encKey)
	if err != nil {
		return nil, nil, err
	}
	defer kdf.SecureWipe(plaintext)

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return header, &payload, nil
}
