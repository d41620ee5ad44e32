package normalize

import (
	"strings"
	"testing"

	"github.com/hyperjump/shohin/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchableText(t *testing.T) {
	p := &models.Product{
		Name:      "Perceuse visseuse",
		Brand:     models.Brand{Name: "BOSCH"},
		Reference: models.Reference{Value: "GSB120-LI"},
		Category:  "outillage",
		Characteristics: []models.Characteristic{
			{Name: "Puissance", Value: "120", Unit: "W"},
			{Name: "Couleur", Value: "bleu"},
		},
	}
	assert.Equal(t, "Perceuse visseuse | BOSCH | GSB120-LI | outillage | Puissance: 120 W | Couleur: bleu", SearchableText(p))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"bosch", "|", "gsb120-li"}, Tokens("  BOSCH |\tGSB120-LI "))
	assert.Empty(t, Tokens("   "))
}

func TestSpreadsheetText(t *testing.T) {
	rows := [][]string{
		{"Marque", "Référence", ""},
		{"BOSCH", "GSB120", ""},
		{"", "", ""},
		{"MAKITA", "", "18V"},
	}
	got := SpreadsheetText("Outils", rows, DefaultLimits)
	assert.Equal(t, "Sheet: Outils\nColumns: Marque | Référence\nRow 1: BOSCH | GSB120\nRow 3: MAKITA | 18V", got)

	bounded := SpreadsheetText("Outils", rows, Limits{MaxRows: 1})
	assert.Equal(t, "Sheet: Outils\nColumns: Marque | Référence\nRow 1: BOSCH | GSB120", bounded)
}

func TestJSONText(t *testing.T) {
	got, err := JSONText([]byte(`{"products":[{"brand":"BOSCH","price":99.5}],"catalog":"2024"}`), DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, "catalog: 2024\nproducts:\n  [0]:\n    brand: BOSCH\n    price: 99.5", got)

	_, err = JSONText([]byte(`{`), DefaultLimits)
	assert.Error(t, err)
}

func TestJSONText_maxChars(t *testing.T) {
	got, err := JSONText([]byte(`{"a":"`+strings.Repeat("x", 100)+`","b":"y"}`), Limits{MaxChars: 20})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestXMLText(t *testing.T) {
	src := `<catalog><product sku="GSB120"><brand>BOSCH</brand> <power unit="W">120</power></product></catalog>`
	got, err := XMLText(strings.NewReader(src), DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, "catalog\n  product (sku=GSB120)\n    brand\n      BOSCH\n    power (unit=W)\n      120", got)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "fr", DetectLanguage("La perceuse est livrée avec les batteries et le chargeur"))
	assert.Equal(t, "en", DetectLanguage("The drill is shipped with the batteries and the charger"))
	assert.Equal(t, "", DetectLanguage("BOSCH GSB120"))
}
