// Package indicators implements the lexical pre-filter that decides which
// messages are worth an expensive classification call. It is tuned for high
// recall: a false positive costs one wasted call, a false negative is a
// silently missed task.
package indicators

import (
	"regexp"
	"strings"
)

// Keyword sets are bilingual (English/Spanish), matched on word boundaries.
var (
	dateTimeWords = []string{
		"today", "tomorrow", "tonight", "morning", "afternoon", "evening",
		"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
		"week", "weekend", "month", "am", "pm", "noon", "midnight", "oclock",
		"hoy", "mañana", "manana", "noche", "tarde", "temprano",
		"lunes", "martes", "miércoles", "miercoles", "jueves", "viernes",
		"sábado", "sabado", "domingo", "semana", "mes", "mediodía", "mediodia",
	}

	eventWords = []string{
		"meeting", "meet", "appointment", "call", "party", "dinner", "lunch",
		"birthday", "event", "class", "lesson", "game", "match", "visit",
		"reunión", "reunion", "cita", "llamada", "fiesta", "cena", "almuerzo",
		"cumpleaños", "cumpleanos", "evento", "clase", "partido", "visita", "junta",
	}

	paymentWords = []string{
		"pay", "paid", "payment", "owe", "owes", "bill", "invoice", "transfer",
		"deposit", "rent", "fee", "cost", "price", "charge", "money", "cash",
		"pagar", "pago", "pagué", "pague", "debe", "debes", "debo", "cuenta",
		"factura", "transferencia", "depósito", "deposito", "renta", "alquiler",
		"dinero", "plata", "efectivo", "cobrar", "cobro",
	}

	urgencyWords = []string{
		"remember", "remind", "reminder", "don't forget", "dont forget", "urgent",
		"asap", "important", "deadline", "due", "must", "need", "needs", "please",
		"bring", "buy", "send", "pick up", "confirm",
		"recuerda", "recordar", "recordatorio", "no olvides", "no te olvides",
		"urgente", "importante", "necesito", "necesitas", "trae", "compra",
		"envía", "envia", "manda", "recoge", "confirma", "por favor",
	}
)

var (
	// 3pm, 3:30 pm, 15:00, 19h
	timePattern = regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s*(am|pm|hs?|hrs)\b|\b\d{1,2}:\d{2}\b`)

	// 15/08, 15-08-2026, aug 15, 15 de agosto
	datePattern = regexp.MustCompile(`(?i)\b\d{1,2}[/-]\d{1,2}([/-]\d{2,4})?\b|\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec|ene|abr|ago|dic)[a-z]*\.?\s+\d{1,2}\b|\b\d{1,2}\s+de\s+[a-záé]+\b`)

	// $50, €20, 50 usd, 100 pesos
	amountPattern = regexp.MustCompile(`(?i)[$€£]\s?\d+([.,]\d+)?|\b\d+([.,]\d+)?\s?(usd|eur|mxn|ars|dollars?|d[oó]lares|euros?|pesos?|bucks)\b`)

	urlPattern = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+\.\S+`)

	// Leading interrogatives catch questions that drop the question mark.
	questionPattern = regexp.MustCompile(`(?i)\?|^\s*(can|could|would|will|when|where|who|what|puedes|podr[ií]as|cu[aá]ndo|d[oó]nde|qui[eé]n|qu[eé])\b`)

	keywordPatterns = compileKeywordSets(dateTimeWords, eventWords, paymentWords, urgencyWords)
)

func compileKeywordSets(sets ...[]string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(sets))
	for _, set := range sets {
		escaped := make([]string, 0, len(set))
		for _, w := range set {
			escaped = append(escaped, regexp.QuoteMeta(w))
		}
		patterns = append(patterns, regexp.MustCompile(`(?i)\b(`+strings.Join(escaped, "|")+`)\b`))
	}
	return patterns
}

// HasIndicators reports whether text carries any lexical signal that it may
// describe an actionable item. Pure and total; no message is ever classified
// unless this returns true.
func HasIndicators(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	for _, p := range keywordPatterns {
		if p.MatchString(text) {
			return true
		}
	}

	return timePattern.MatchString(text) ||
		datePattern.MatchString(text) ||
		amountPattern.MatchString(text) ||
		urlPattern.MatchString(text) ||
		questionPattern.MatchString(text)
}
