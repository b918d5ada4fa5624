package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const BearerPrefix = "Bearer "

// minSecretLen segue o mínimo de 256 bits para HMAC-SHA.
const minSecretLen = 32

var (
	ErrMissing = errors.New("missing token")
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("invalid token")
)

// Claims é a identidade extraída de um token válido. Imutável depois de criada.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier valida bearer tokens HMAC com uma chave simétrica carregada uma vez
// na inicialização.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

type VerifierOption func(*verifierOptions)

type verifierOptions struct {
	now    func() time.Time
	leeway time.Duration
}

// WithTimeFunc troca o relógio usado na checagem de exp.
func WithTimeFunc(now func() time.Time) VerifierOption {
	return func(o *verifierOptions) { o.now = now }
}

func WithLeeway(d time.Duration) VerifierOption {
	return func(o *verifierOptions) { o.leeway = d }
}

func NewVerifier(secret []byte, opts ...VerifierOption) (*Verifier, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes, got %d", minSecretLen, len(secret))
	}

	o := verifierOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(o.now),
		jwt.WithLeeway(o.leeway),
	)

	return &Verifier{
		key:    append([]byte(nil), secret...),
		parser: parser,
	}, nil
}

// Verify recebe o valor cru do header Authorization.
//
// O prefixo "Bearer " é case-sensitive. Ausência ou outro esquema é ErrMissing;
// exp vencido é ErrExpired; qualquer outra falha (assinatura, estrutura,
// algoritmo, subject vazio) é ErrInvalid. Os erros retornados embrulham a
// causa original do jwt.
func (v *Verifier) Verify(header string) (Claims, error) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return Claims{}, ErrMissing
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	if raw == "" {
		return Claims{}, ErrMissing
	}

	var tc tokenClaims
	_, err := v.parser.ParseWithClaims(raw, &tc, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: %w", ErrExpired, err)
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if tc.Subject == "" {
		return Claims{}, fmt.Errorf("%w: empty subject", ErrInvalid)
	}

	var exp time.Time
	if tc.ExpiresAt != nil {
		exp = tc.ExpiresAt.Time
	}
	return Claims{Subject: tc.Subject, Role: tc.Role, ExpiresAt: exp}, nil
}

// Sign emite um token HS256 com a mesma chave. Usado pelo cmd/tokengen e nos testes.
func (v *Verifier) Sign(c Claims, issuedAt time.Time) (string, error) {
	tc := tokenClaims{
		Role: c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(v.key)
}
