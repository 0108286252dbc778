package difficulty

import (
	"therapyportal/ml"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Labels is the canonical text for each recommendation code.
var Labels = map[int]string{
	ml.LabelMaintain: "Maintain Level",
	ml.LabelAdvance:  "Advance Level",
	ml.LabelRegress:  "Regress/Support",
}

var labelCatalog = newLabelCatalog()

func newLabelCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, text := range Labels {
		_ = b.SetString(language.English, text, text)
	}
	_ = b.SetString(language.Spanish, Labels[ml.LabelMaintain], "Mantener Nivel")
	_ = b.SetString(language.Spanish, Labels[ml.LabelAdvance], "Avanzar Nivel")
	_ = b.SetString(language.Spanish, Labels[ml.LabelRegress], "Retroceder/Apoyo")
	return b
}

// LabelText returns the text for code in the given language, falling back
// to English. Unknown codes map to "".
func LabelText(code int, tag language.Tag) string {
	p := message.NewPrinter(tag, message.Catalog(labelCatalog))
	switch code {
	case ml.LabelMaintain:
		return p.Sprintf("Maintain Level")
	case ml.LabelAdvance:
		return p.Sprintf("Advance Level")
	case ml.LabelRegress:
		return p.Sprintf("Regress/Support")
	default:
		return ""
	}
}
