package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasIndicatorsPositive(t *testing.T) {
	positives := []string{
		"Meeting tomorrow at 3pm",
		"Don't forget to pay the rent",
		"La reunión es el viernes",
		"Me debes $50 de la cena",
		"Transfer 20 usd before friday",
		"Check this out https://example.com/invite",
		"Can you pick up the kids?",
		"Cita con el doctor el 15/08",
		"Dinner at 19:30",
		"Recuerda comprar leche mañana",
		"The deadline is due Monday",
		"¿Puedes confirmar la fecha?",
	}

	for _, text := range positives {
		assert.True(t, HasIndicators(text), "expected indicators in %q", text)
	}
}

func TestHasIndicatorsNegative(t *testing.T) {
	negatives := []string{
		"Thanks!",
		"",
		"   ",
		"jajaja",
		"ok",
		"nice picture",
		"lol same here",
	}

	for _, text := range negatives {
		assert.False(t, HasIndicators(text), "expected no indicators in %q", text)
	}
}

func TestHasIndicatorsWordBoundaries(t *testing.T) {
	// Substrings of keywords must not trigger.
	assert.False(t, HasIndicators("hampmster"))
	assert.True(t, HasIndicators("see you at 5 pm"))
}

func TestHasIndicatorsIsPure(t *testing.T) {
	text := "Meeting tomorrow at 3pm"
	first := HasIndicators(text)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, HasIndicators(text))
	}
}
