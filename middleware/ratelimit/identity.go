package ratelimit

import (
	"strings"

	"edge-gateway/middleware/pipeline"
)

// KeyFunc resolve a identidade do cliente (sem o prefixo).
type KeyFunc func(rc *pipeline.RequestContext) string

// DefaultKeyFunc resolve na ordem (a primeira que existir vence):
//
//  1. primeiro valor (separado por vírgula) do header configurado, ex: X-Forwarded-For
//  2. o subject autenticado, se useAuthenticated
//  3. o host de RemoteAddr
//  4. o request ID, para nunca ficar sem chave
func DefaultKeyFunc(identityHeader string, useAuthenticated bool) KeyFunc {
	return func(rc *pipeline.RequestContext) string {
		if identityHeader != "" {
			if v := firstListValue(rc.Header(identityHeader)); v != "" {
				return v
			}
		}

		if useAuthenticated {
			if sub := rc.Annotation(pipeline.AnnotationSubject); sub != "" {
				return sub
			}
		}

		if rc.ClientAddr != "" {
			return rc.ClientAddr
		}
		return rc.ID
	}
}

func firstListValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
