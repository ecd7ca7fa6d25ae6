package apperr

import "github.com/rs/zerolog"

// LogEvent picks the level for a failed operation: storage failures are
// errors, domain rejections are warnings.
func LogEvent(logger zerolog.Logger, err error) *zerolog.Event {
	kind := KindOf(err)
	evt := logger.Warn()
	if kind == KindStorageFailure {
		evt = logger.Error()
	}
	return evt.Err(err).Str("kind", string(kind)).Str("code", string(CodeOf(err)))
}
