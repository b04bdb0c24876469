package bytepool

import "github.com/rs/zerolog"

// logger wraps a *zerolog.Logger the way joeycumines-go-utilpkg's
// logiface-zerolog adapter does: a small struct field, not the package-level
// zerolog.log global, so multiple allocators in one process never fight over
// one global sink. Defaults to a disabled logger: nothing
// is logged unless the caller opts in via WithLogger.
type logger struct {
	l zerolog.Logger
}

func newNopLogger() logger {
	return logger{l: zerolog.Nop()}
}

// Option configures a Facade at construction time.
type Option func(*Facade)

// WithLogger routes the façade's cold-path lifecycle events (arena/chunk/
// subpage creation and destruction, OOM, config/invariant failures) to l.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Facade) {
		f.log = logger{l: l}
	}
}

func (lg logger) arenaCreated(kind string, index int) {
	lg.l.Info().Str("kind", kind).Int("index", index).Msg("arena created")
}

func (lg logger) chunkCreated(chunkSize int) {
	lg.l.Debug().Int("chunk_size", chunkSize).Msg("chunk created")
}

func (lg logger) chunkDestroyed() {
	lg.l.Debug().Msg("chunk destroyed")
}

func (lg logger) subpageCreated(elemSize int) {
	lg.l.Debug().Int("elem_size", elemSize).Msg("subpage created")
}

func (lg logger) subpageDestroyed(elemSize int) {
	lg.l.Debug().Int("elem_size", elemSize).Msg("subpage destroyed")
}

func (lg logger) outOfMemory(reqCap int, err error) {
	lg.l.Error().Int("req_cap", reqCap).Err(err).Msg("out of memory")
}

func (lg logger) configInvalid(err error) {
	lg.l.Error().Err(err).Msg("invalid configuration")
}

func (lg logger) invariantViolated(op, detail string) {
	lg.l.Error().Str("op", op).Str("detail", detail).Msg("invariant violated")
}
