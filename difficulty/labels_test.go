package difficulty

import (
	"testing"

	"therapyportal/ml"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestLabelTextEveryCode(t *testing.T) {
	for _, code := range []int{ml.LabelMaintain, ml.LabelAdvance, ml.LabelRegress} {
		text := LabelText(code, language.English)
		assert.NotEmpty(t, text, "code %d", code)
		assert.Equal(t, Labels[code], text)
	}
	assert.Equal(t, "Maintain Level", LabelText(0, language.English))
	assert.Equal(t, "Advance Level", LabelText(1, language.English))
	assert.Equal(t, "Regress/Support", LabelText(2, language.English))
}

func TestLabelTextSpanish(t *testing.T) {
	assert.Equal(t, "Mantener Nivel", LabelText(ml.LabelMaintain, language.Spanish))
	assert.Equal(t, "Avanzar Nivel", LabelText(ml.LabelAdvance, language.MustParse("es-MX")))
	assert.Equal(t, "Retroceder/Apoyo", LabelText(ml.LabelRegress, language.Spanish))
}

func TestLabelTextFallsBackToEnglish(t *testing.T) {
	assert.Equal(t, "Advance Level", LabelText(ml.LabelAdvance, language.Japanese))
	assert.Empty(t, LabelText(7, language.English))
}
