package sink

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/app/playback"
	"github.com/osa030/sonicbox/internal/infra/config"
)

// Sink types.
const (
	TypeTimed = "timed"
	TypeExec  = "exec"
)

// Factory creates one sink per connected room.
type Factory struct {
	kind  string
	timed TimedSettings
	exec  ExecSettings
}

// NewFactory creates a sink factory from configuration.
func NewFactory(cfg config.SinkConfig) (*Factory, error) {
	f := &Factory{kind: cfg.Type}

	var err error
	switch cfg.Type {
	case TypeTimed:
		err = decodeSettings(cfg.Settings, &f.timed)
	case TypeExec:
		err = decodeSettings(cfg.Settings, &f.exec)
	default:
		return nil, errors.Newf("unsupported sink type: %s", cfg.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s sink settings", cfg.Type)
	}

	zlog.Debug().Msgf("sink: factory created: type=%s", cfg.Type)
	return f, nil
}

// New creates a sink.
func (f *Factory) New() playback.Sink {
	if f.kind == TypeExec {
		return NewExecSink(f.exec)
	}
	return NewTimedSink(f.timed)
}

// Type returns the sink type the factory creates.
func (f *Factory) Type() string {
	return f.kind
}

func decodeSettings(settings map[string]any, out any) error {
	if len(settings) > 0 {
		if err := mapstructure.Decode(settings, out); err != nil {
			return errors.Wrap(err, "failed to decode settings")
		}
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
