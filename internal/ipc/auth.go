package ipc

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrAuthorizationDenied is returned when a request's token fails to
// validate for the right it claims (spec.md §7's AuthorizationDenied).
const ErrAuthorizationDenied errors.Error = "ipc: authorization denied"

const nonceSize = 24

// Authority seals and validates per-request authorization tokens under a
// key generated once at daemon startup, the Go analogue of the macOS
// Authorization Services right-check the original performs before XPC
// dispatch (spec.md §4.8): granting a token stands in for the interactive
// prompt, and validating one stands in for the XPC server's rights check.
type Authority struct {
	key [32]byte
}

// NewAuthority generates a fresh boot-lifetime key.
func NewAuthority() (a *Authority, err error) {
	a = &Authority{}
	if _, err = rand.Read(a.key[:]); err != nil {
		return nil, errors.Annotate(err, "ipc: generating authority key: %w")
	}

	return a, nil
}

// Grant seals a token authorizing right, valid only for this process's
// lifetime (the key never leaves memory and is never persisted).
func (a *Authority) Grant(right string) (token string, err error) {
	var nonce [nonceSize]byte
	if _, err = rand.Read(nonce[:]); err != nil {
		return "", errors.Annotate(err, "ipc: generating nonce: %w")
	}

	plain := make([]byte, 8+len(right))
	binary.BigEndian.PutUint64(plain, uint64(time.Now().Unix()))
	copy(plain[8:], right)

	sealed := secretbox.Seal(nonce[:], plain, &nonce, &a.key)

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Validate reports whether token authorizes right.
func (a *Authority) Validate(token, right string) (err error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(sealed) < nonceSize {
		return ErrAuthorizationDenied
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &a.key)
	if !ok || len(plain) < 8 {
		return ErrAuthorizationDenied
	}

	if string(plain[8:]) != right {
		return ErrAuthorizationDenied
	}

	return nil
}
