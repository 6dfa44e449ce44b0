package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Shingeki no Kyojin", "shingeki-no-kyojin"},
		{"Attack on Titan", "attack-on-titan"},
		{"Re:ZERO -Starting Life in Another World-", "re-zero-starting-life-in-another-world"},
		{"Kino's Journey", "kinos-journey"},
		{"Pokémon", "pokemon"},
		{"  Mob Psycho 100  ", "mob-psycho-100"},
		{"進撃の巨人", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.in), "Slugify(%q)", tc.in)
	}
}

func TestGetOrdinalSuffix(t *testing.T) {
	assert.Equal(t, "st", GetOrdinalSuffix(1))
	assert.Equal(t, "nd", GetOrdinalSuffix(22))
	assert.Equal(t, "rd", GetOrdinalSuffix(3))
	assert.Equal(t, "th", GetOrdinalSuffix(11))
	assert.Equal(t, "th", GetOrdinalSuffix(13))
	assert.Equal(t, "", GetOrdinalSuffix(0))
}
