package textnorm

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercase", "Pikachu V", "pikachu v"},
		{"diacritics", "Pokémon Flabébé", "pokemon flabebe"},
		{"whitespace run", "  Charizard \t ex\n006 ", "charizard ex 006"},
		{"already normal", "mew ex 151", "mew ex 151"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Pokémon  CARD", "ピカチュウ", "Flabébé ex  181/165", ""}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeQueryAliases(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Pikachu JAP graad 9", "pikachu ja graad 9"},
		{"charizard JPN", "charizard ja"},
		{"mew giapponese promo", "mew ja promo"},
		{"pikachu ENG 181/165", "pikachu en 181/165"},
		{"eevee english", "eevee en"},
		{"inglese lotto", "en lotto"},
		{"no alias here", "no alias here"},
	}

	for _, tt := range tests {
		if got := NormalizeQuery(tt.in); got != tt.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeQueryDoesNotTouchWords(t *testing.T) {
	// "japan" and "jumpluff" must survive; only whole-word aliases rewrite.
	if got := NormalizeQuery("made in japan jumpluff"); got != "made in japan jumpluff" {
		t.Errorf("got %q", got)
	}
}
