// Package cryptox implements the credential helper: a salted, iterated
// PBKDF2-SHA256 password digest whose iteration count is stored next to the
// hash so it can be raised later without invalidating older records.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultIterations = 210_000
	SaltSize          = 16
	KeySize           = 32
)

var ErrEmptyPassword = errors.New("password is empty")

// PBKDF2 derives and verifies password digests.
type PBKDF2 struct {
	// Iterations applies to new digests only; Verify uses the stored count.
	Iterations int
	// MinEntropy is the minimum password entropy in bits accepted by
	// CheckStrength. Zero disables the check.
	MinEntropy float64
}

// NewPBKDF2 returns a helper with DefaultIterations.
func NewPBKDF2(minEntropy float64) *PBKDF2 {
	return &PBKDF2{Iterations: DefaultIterations, MinEntropy: minEntropy}
}

// Derive hashes password with a fresh random salt.
func (p *PBKDF2) Derive(password []byte) (*models.PasswordDigest, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	iter := p.Iterations
	if iter <= 0 {
		iter = DefaultIterations
	}
	salt := common.GenerateRandByteArray(SaltSize)
	return &models.PasswordDigest{
		Salt:       salt,
		Hash:       pbkdf2.Key(password, salt, iter, KeySize, sha256.New),
		Iterations: iter,
	}, nil
}

// Verify reports whether password matches d.
func (p *PBKDF2) Verify(password []byte, d *models.PasswordDigest) bool {
	if d == nil || d.Iterations <= 0 || len(d.Hash) == 0 {
		return false
	}
	candidate := pbkdf2.Key(password, d.Salt, d.Iterations, len(d.Hash), sha256.New)
	return subtle.ConstantTimeCompare(candidate, d.Hash) == 1
}

// CheckStrength rejects passwords below MinEntropy bits.
func (p *PBKDF2) CheckStrength(password []byte) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}
	if p.MinEntropy <= 0 {
		return nil
	}
	return passwordvalidator.Validate(string(password), p.MinEntropy)
}
