package coding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCodeText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Poder Local", "poder local"},
		{"poder local ", "poder local"},
		{"  PODER\t\nLOCAL  ", "poder local"},
		{"Liderazgo", "liderazgo"},
		{"Straße", "strasse"},
		{"Café comunitario", "café comunitario"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeCodeText(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeCodeTextComposesAccents(t *testing.T) {
	decomposed := "Cafe\u0301"
	assert.Equal(t, NormalizeCodeText("Caf\u00e9"), NormalizeCodeText(decomposed))
}

func TestCleanCodeTextKeepsCase(t *testing.T) {
	assert.Equal(t, "Poder Local", CleanCodeText("  Poder   Local "))
}
