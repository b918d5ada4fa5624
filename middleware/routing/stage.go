package routing

import (
	"context"
	"errors"
	"time"

	"edge-gateway/middleware/pipeline"

	"github.com/sirupsen/logrus"
)

// Stage decide o destino. Sempre termina a cadeia: Forward ou o envelope 503.
type Stage struct {
	table *Table
	log   logrus.FieldLogger
	now   func() time.Time
}

var _ pipeline.Stage = (*Stage)(nil)

func NewStage(table *Table, log logrus.FieldLogger) *Stage {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Stage{table: table, log: log.WithField("component", "routing"), now: time.Now}
}

func (s *Stage) Name() string { return "routing" }

func (s *Stage) Handle(_ context.Context, rc *pipeline.RequestContext) (pipeline.Outcome, error) {
	entry, err := s.table.Resolve(rc.Path)
	if errors.Is(err, ErrNotFound) {
		s.log.WithField("request_id", rc.ID).WithField("path", rc.Path).Debug("no route for path")
		return pipeline.Unavailable(s.now()), nil
	}
	if err != nil {
		return pipeline.Outcome{}, err
	}

	rc.Annotate(pipeline.AnnotationRoute, entry.ID)
	return pipeline.Forward(pipeline.Target{
		RouteID: entry.ID,
		URL:     entry.Rewrite(rc.EscapedPath, rc.RawQuery),
	}), nil
}
