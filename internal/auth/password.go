// Package auth: password hashing utilities.
//
// STORED PASSWORDS:
// New passwords are stored as bcrypt hashes, salt and cost included:
//
//	$2a$12$<22-char salt><31-char hash>
//
// The users document used to hold plain text. Such records still log in
// (see Check), and UserService swaps them for a hash on the next successful
// login, so the document converges on bcrypt without a migration.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor: about 250ms per hash on a server.
const defaultCost = 12

// maxPasswordBytes is where bcrypt stops reading. Longer input is refused
// instead of silently truncated.
const maxPasswordBytes = 72

// ErrPasswordTooLong is returned by Hash for input over 72 bytes.
var ErrPasswordTooLong = errors.New("auth: password must be 72 bytes or fewer")

// PasswordService hashes and checks passwords. The cost is a field so tests
// can run at bcrypt's minimum.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the production cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with the given cost,
// usually bcrypt.MinCost (4). Never use it outside tests.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil if plaintext matches the bcrypt hash.
// bcrypt compares in constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// IsHash reports whether stored looks like a bcrypt hash rather than a
// legacy plain-text password.
func IsHash(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

// Check verifies plaintext against a stored password that is either a bcrypt
// hash or a legacy plain-text value.
//
// ok reports whether the password matches. rehash is true when the match was
// against a plain-text value and the caller should replace it with Hash.
//
// Plain-text values are compared with subtle.ConstantTimeCompare so the
// legacy path leaks no more timing than bcrypt does.
func (p *PasswordService) Check(stored, plaintext string) (ok, rehash bool) {
	if stored == "" {
		return false, false
	}
	if IsHash(stored) {
		return p.Verify(stored, plaintext) == nil, false
	}
	match := subtle.ConstantTimeCompare([]byte(stored), []byte(plaintext)) == 1
	return match, match
}
