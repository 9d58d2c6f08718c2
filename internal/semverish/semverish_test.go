package semverish

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.2.3", "1.2.4", -1},
		{"1.10.0", "1.9.0", 1},
		{"2.0", "1.9.9", 1},
		{"1.0", "1.0.0", 0},
		{"1.2.3-alpha", "1.2.3-beta", -1},
		{"v1.2.3", "v1.2.3", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			got := Compare(tt.a, tt.b)
			switch {
			case tt.want < 0 && got >= 0:
				t.Errorf("Compare(%q,%q) = %d, want < 0", tt.a, tt.b, got)
			case tt.want > 0 && got <= 0:
				t.Errorf("Compare(%q,%q) = %d, want > 0", tt.a, tt.b, got)
			case tt.want == 0 && got != 0:
				t.Errorf("Compare(%q,%q) = %d, want 0", tt.a, tt.b, got)
			}
		})
	}
}

func TestEqualAndLess(t *testing.T) {
	if !Equal("1.0.0", "1.0") {
		t.Error("expected 1.0.0 == 1.0")
	}
	if !Less("1.2.3", "1.2.10") {
		t.Error("expected 1.2.3 < 1.2.10 (numeric, not lexical)")
	}
	if Less("1.2.10", "1.2.3") {
		t.Error("expected 1.2.10 not < 1.2.3")
	}
}
