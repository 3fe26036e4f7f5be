package services

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/logger"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("usuário ou senha incorretos")
	ErrInvalidSession     = errors.New("sessão inválida ou expirada")
)

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth checks the configured admin credentials and issues session
// tokens. With an empty username only the password is checked.
type AdminAuth struct {
	issuer   string
	username string
	passHash []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewAdminAuth accepts the password either in clear text or already as a
// bcrypt hash.
func NewAdminAuth(issuer, username, password, secret string, ttl time.Duration) (*AdminAuth, error) {
	if password == "" || secret == "" {
		return nil, errors.New("admin password and session secret are required")
	}
	hash := []byte(password)
	if _, err := bcrypt.Cost(hash); err != nil {
		if hash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost); err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
	}
	return &AdminAuth{
		issuer:   issuer,
		username: username,
		passHash: hash,
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

func (a *AdminAuth) TTL() time.Duration {
	return a.ttl
}

// Login returns a signed session token for a correct username/password pair.
func (a *AdminAuth) Login(username, password string) (string, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.passHash, []byte(password)) == nil
	if !userOK || !passOK {
		logger.Warningf("Failed admin login for %q", username)
		return "", ErrInvalidCredentials
	}

	now := a.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, adminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	})
	s, err := tok.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	logger.Infof("Admin %q logged in", username)
	return s, nil
}

// Verify checks a session token issued by Login.
func (a *AdminAuth) Verify(token string) error {
	if token == "" {
		return ErrInvalidSession
	}
	tok, err := jwt.ParseWithClaims(token, &adminClaims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tok.Valid {
		return ErrInvalidSession
	}
	if cl, ok := tok.Claims.(*adminClaims); !ok || cl.Role != "admin" {
		return ErrInvalidSession
	}
	return nil
}

// LoginForm is the state of the admin login form.
type LoginForm struct {
	Username string
	Password string
	Error    string
	Token    string
}

// Submit tries the credentials as typed; the username must match exactly.
// On failure the password is cleared and the error message set; the username
// is kept.
func (f *LoginForm) Submit(auth *AdminAuth) bool {
	token, err := auth.Login(f.Username, f.Password)
	if err != nil {
		f.Password = ""
		f.Error = err.Error()
		f.Token = ""
		return false
	}
	f.Error = ""
	f.Token = token
	return true
}
