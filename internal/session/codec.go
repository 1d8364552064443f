package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var errCorrupt = errors.New("session document cannot be opened")

// codec turns records into sealed documents and back. The session id is
// bound as additional data so a document cannot be replayed under another id.
type codec struct {
	key []byte
}

func newCodec(secret string) (*codec, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("notekeeper session store v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return &codec{key: key}, nil
}

func (c *codec) seal(id string, rec *Record) ([]byte, error) {
	plain, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("session nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plain, []byte(id)), nil
}

func (c *codec) open(id string, doc []byte) (*Record, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(doc) < aead.NonceSize()+aead.Overhead() {
		return nil, errCorrupt
	}
	nonce, sealed := doc[:aead.NonceSize()], doc[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(id))
	if err != nil {
		return nil, errCorrupt
	}
	var rec Record
	if err := json.Unmarshal(plain, &rec); err != nil {
		return nil, errCorrupt
	}
	return &rec, nil
}
