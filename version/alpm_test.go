package version

import "testing"

func TestVercmpRequiredIdentities(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"01", "1", 0},
		{"1.0.", "1.0", 1},
		{"1.0..", "1.0.", 0},
		{"1.1a1", "1.111", -1},
		{"", "1", -1},
		{"", "a", 1},
		{"001a", "1a", 0},
	}
	for _, c := range cases {
		if got := Vercmp(c.a, c.b); got != c.want {
			t.Errorf("Vercmp(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestVercmpReflexive(t *testing.T) {
	for _, s := range []string{"", "1", "1.0", "a", "1.2.3-beta", "01", "1.1a1"} {
		if got := Vercmp(s, s); got != 0 {
			t.Errorf("Vercmp(%q, %q) = %d, want 0", s, s, got)
		}
	}
}

func TestVercmpAntisymmetric(t *testing.T) {
	cases := [][2]string{{"1.0", "1.1"}, {"a", "b"}, {"1", "01a"}, {"1.0.", "1.0"}}
	for _, c := range cases {
		a, b := Vercmp(c[0], c[1]), Vercmp(c[1], c[0])
		if a != -b {
			t.Errorf("Vercmp(%q,%q)=%d and Vercmp(%q,%q)=%d are not antisymmetric", c[0], c[1], a, c[1], c[0], b)
		}
	}
}

func TestPkgVercmp(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0-1", "1.0.0-1", 0},
		{"1.0.0-1", "1.0.1-1", -1},
		{"1:1.0.0-1", "2.0.0-1", 1},
		{"1.0.0-1", "1.0.0-2", -1},
		{"1-rc1-1", "1-rc2-1", -1},
	}
	for _, c := range cases {
		if got := PkgVercmp(c.a, c.b); got != c.want {
			t.Errorf("PkgVercmp(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
