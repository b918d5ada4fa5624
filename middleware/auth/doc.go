// Package auth valida bearer tokens (JWT HMAC) e transforma as claims em
// headers derivados (X-User-Id, X-User-Role) para o upstream.
package auth
