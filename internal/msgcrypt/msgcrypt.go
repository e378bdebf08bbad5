// Package msgcrypt encrypts chat payloads exchanged with the assistant
// backend. Key material lives in a keymgmt store on disk; a single data
// encryption key, derived once at startup, protects every message of the
// process lifetime.
package msgcrypt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
)

const descriptorName = "inlined/chat"

// Codec implements payload encryption for the chat channel. Encrypt
// serializes a value to JSON, seals it, and base64-encodes the result for
// transport inside a JSON string; Decrypt reverses it back to plaintext.
type Codec struct {
	root     keymgmt.RootKey
	material keymgmt.Material
	log      pslog.Logger
}

// Open loads (or creates) the key store at path and derives the chat
// encryption material.
func Open(path string, logger pslog.Logger) (*Codec, error) {
	if path == "" {
		return nil, fmt.Errorf("key store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("key store dir: %w", err)
	}
	store, err := keymgmt.LoadProto(path)
	if err != nil {
		return nil, fmt.Errorf("load key store: %w", err)
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		return nil, fmt.Errorf("ensure root key: %w", err)
	}
	material, err := store.EnsureDescriptor(descriptorName, root, []byte(descriptorName))
	if err != nil {
		return nil, fmt.Errorf("ensure descriptor: %w", err)
	}
	if err := store.Commit(); err != nil {
		return nil, fmt.Errorf("commit key store: %w", err)
	}
	if logger != nil {
		logger.Debug("chat key material ready", "store", path)
	}
	return &Codec{root: root, material: material, log: logger}, nil
}

// Encrypt seals v for transport.
func (c *Codec) Encrypt(v any) (string, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	kg := kryptograf.New(c.root)
	var buf bytes.Buffer
	writer, err := kg.EncryptWriter(&buf, c.material)
	if err != nil {
		return "", fmt.Errorf("encrypt payload: %w", err)
	}
	if _, err := writer.Write(plain); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("encrypt payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("encrypt payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decrypt opens a sealed payload and returns the plaintext JSON.
func (c *Codec) Decrypt(s string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}
	kg := kryptograf.New(c.root)
	reader, err := kg.DecryptReader(bytes.NewReader(sealed), c.material)
	if err != nil {
		return "", fmt.Errorf("decrypt payload: %w", err)
	}
	defer func() { _ = reader.Close() }()
	plain, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("decrypt payload: %w", err)
	}
	return string(plain), nil
}
