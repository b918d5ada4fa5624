package auth

import (
	"context"
	"errors"
	"net/http"

	"edge-gateway/middleware/pipeline"

	"github.com/sirupsen/logrus"
)

// FailureRecorder recebe o motivo de cada 401 (ex: contador Prometheus).
type FailureRecorder interface {
	AuthFailure(reason string)
}

// Stage valida o bearer token e injeta a identidade derivada.
// Falha fechado: qualquer erro vira 401, nunca segue adiante.
type Stage struct {
	verifier *Verifier
	log      logrus.FieldLogger
	recorder FailureRecorder
}

var (
	_ pipeline.Stage     = (*Stage)(nil)
	_ pipeline.Protected = (*Stage)(nil)
)

func NewStage(v *Verifier, log logrus.FieldLogger, rec FailureRecorder) *Stage {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Stage{verifier: v, log: log.WithField("component", "auth"), recorder: rec}
}

func (s *Stage) Name() string { return "auth" }

// Protected: paths públicos pulam a autenticação.
func (s *Stage) Protected() bool { return true }

func (s *Stage) Handle(_ context.Context, rc *pipeline.RequestContext) (pipeline.Outcome, error) {
	claims, err := s.verifier.Verify(rc.Header("Authorization"))
	if err != nil {
		reason := Reason(err)
		entry := s.log.WithField("request_id", rc.ID).WithField("path", rc.Path)
		if errors.Is(err, ErrMissing) {
			entry.Debug("missing or malformed Authorization header")
		} else {
			entry.WithError(err).Warn("jwt validation failed")
		}
		if s.recorder != nil {
			s.recorder.AuthFailure(reason)
		}
		return pipeline.Reject(http.StatusUnauthorized, pipeline.ErrorBody{Error: reason}).
			WithHeader("WWW-Authenticate", `Bearer realm="gateway"`), nil
	}

	rc.Annotate(pipeline.AnnotationSubject, claims.Subject)
	rc.SetDerivedHeader(pipeline.HeaderUserID, claims.Subject)
	if claims.Role != "" {
		rc.Annotate(pipeline.AnnotationRole, claims.Role)
		rc.SetDerivedHeader(pipeline.HeaderUserRole, claims.Role)
	}
	return pipeline.Continue(), nil
}

// Reason traduz o erro do Verifier para o texto do corpo 401.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissing):
		return ErrMissing.Error()
	case errors.Is(err, ErrExpired):
		return ErrExpired.Error()
	default:
		return ErrInvalid.Error()
	}
}
