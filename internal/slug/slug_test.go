package slug

import "testing"

func TestNormalizeCode(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ab 12", "AB-12"},
		{"CNT/2024/001", "CNT-2024-001"},
		{"  fish--grade_a  ", "FISH-GRADE_A"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeCode(c.in); got != c.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsCode(t *testing.T) {
	if !IsCode("CNT-2024-001") {
		t.Error("expected CNT-2024-001 to be a valid code")
	}
	if IsCode("lower") || IsCode("-LEAD") || IsCode("") {
		t.Error("invalid codes accepted")
	}
}
