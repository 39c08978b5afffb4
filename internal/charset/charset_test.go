package charset

import "testing"

func TestFold(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Hello", "Hello"},
		{"Beyoncé", "Beyonce"},
		{"Motörhead", "Motorhead"},
		{"Straße", "Strasse"},
		{"Sigur Rós", "Sigur Ros"},
		{"Björk – Jóga", "Bjork - Joga"},
		{"東京", ""},
		{"tab\there", "tabhere"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Fold(c.in); got != c.want {
			t.Errorf("Fold(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBytesOnePerRune(t *testing.T) {
	got := Bytes("Café\r東")
	want := []byte{'C', 'a', 'f', 'e', 0x0d, '?'}
	if string(got) != string(want) {
		t.Fatalf("Bytes = %q, want %q", got, want)
	}
}
