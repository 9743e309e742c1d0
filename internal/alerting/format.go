package alerting

import (
	"fmt"
	"strings"
	"time"

	"cgm-alerts/internal/gate"
	"cgm-alerts/internal/glucose"
)

const localTimeLayout = "02/01/2006 - 15:04"

var (
	generalHelp = []string{
		"/start  -  Refaz a autenticação do usuário.",
		"/g  -  Mostra a glicose atual.",
		"/glicose  -  Mostra a glicose atual.",
		"/grafico  -  Envia o gráfico das últimas leituras.",
	}
	muteHelp = []string{
		"/silencia20  -  Silencia por 20 minutos.",
		"/silencia40  -  Silencia por 40 minutos.",
		"/silencia60  -  Silencia por 60 minutos.",
		"/silencia90  -  Silencia por 90 minutos.",
		"/remover_silenciar  -  Remove o silenciar.",
	}
)

// HelpText lists the bot commands. onlyMute restricts it to the mute commands.
func HelpText(onlyMute bool) string {
	if onlyMute {
		return strings.Join(muteHelp, "\n")
	}
	lines := make([]string, 0, len(generalHelp)+len(muteHelp))
	lines = append(lines, generalHelp...)
	lines = append(lines, muteHelp...)
	return strings.Join(lines, "\n")
}

// WithMuteFooter appends the mute command list to msg.
func WithMuteFooter(msg string) string {
	return msg + "\n" + HelpText(true)
}

// Keyword classifies value against the thresholds.
func Keyword(value int, t gate.Thresholds) string {
	switch {
	case value >= t.High:
		return "Hiperglicemia"
	case value <= t.Low:
		return "Hipoglicemia"
	default:
		return "Glicemia"
	}
}

// ReadingMessage renders r as the user facing reading text, e.g.
// "Hiperglicemia: 250 mg/dL ↗\n(10/05/2024 - 09:05)".
func ReadingMessage(r glucose.Reading, t gate.Thresholds, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("%s: %d mg/dL %s\n(%s)",
		Keyword(r.Value, t),
		r.Value,
		r.Direction.Arrow(),
		r.Time().In(loc).Format(localTimeLayout),
	)
}

// PointFormatter adapts ReadingMessage to gate.Options.Format.
func PointFormatter(loc *time.Location) func(glucose.Reading, gate.Thresholds) string {
	return func(r glucose.Reading, t gate.Thresholds) string {
		return ReadingMessage(r, t, loc)
	}
}
