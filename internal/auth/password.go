package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Credential grants Role to whoever presents Password.
type Credential struct {
	Role     string
	Password string
}

// Authenticator checks shared dashboard passwords. Every configured password
// is compared so timing does not reveal which one matched.
type Authenticator struct {
	creds []hashedCredential
}

type hashedCredential struct {
	role string
	sum  [sha256.Size]byte
}

func NewAuthenticator(creds ...Credential) *Authenticator {
	a := &Authenticator{}
	for _, c := range creds {
		if c.Password == "" || c.Role == "" {
			continue
		}
		a.creds = append(a.creds, hashedCredential{role: c.Role, sum: sha256.Sum256([]byte(c.Password))})
	}
	return a
}

// Login returns the role granted to password. username is only recorded
// by callers; it does not select the credential.
func (a *Authenticator) Login(username, password string) (string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	got := sha256.Sum256([]byte(password))
	role := ""
	for _, c := range a.creds {
		if subtle.ConstantTimeCompare(got[:], c.sum[:]) == 1 && role == "" {
			role = c.role
		}
	}
	if role == "" {
		return "", ErrInvalidCredentials
	}
	return role, nil
}
