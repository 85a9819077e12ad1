package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/mrazakos/revwatch/internal/types"
)

// zerologAdapter exposes a zerolog.Logger through the Logger interface the
// rest of revwatch expects
type zerologAdapter struct {
	l zerolog.Logger
}

func (z zerologAdapter) Printf(format string, v ...interface{}) {
	z.l.Info().Msgf(format, v...)
}

func (z zerologAdapter) Println(v ...interface{}) {
	z.l.Info().Msg(fmt.Sprintln(v...))
}

// newLogger picks console output on a terminal, JSON otherwise
func newLogger() types.Logger {
	var l zerolog.Logger
	if term.IsTerminal(int(os.Stderr.Fd())) {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return zerologAdapter{l: l.With().Timestamp().Logger()}
}
