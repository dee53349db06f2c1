package textutil

import "testing"

func TestContainsHan(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"张伟", true},
		{"John Smith", false},
		{"John 张", true},
		{"", false},
		{"カタカナ", false},
	}
	for _, tt := range tests {
		if got := ContainsHan(tt.in); got != tt.want {
			t.Errorf("ContainsHan(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCleanCharacterName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"饰 李云龙", "李云龙"},
		{"饰李云龙", "李云龙"},
		{"李云龙 / 团长", "李云龙"},
		{"Tony Stark (voice)", "Tony Stark"},
		{"Tony Stark [voice]", "Tony Stark"},
		{"Narrator (V.O.)", "Narrator"},
		{"  Bruce Wayne  ", "Bruce Wayne"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanCharacterName(tt.in); got != tt.want {
			t.Errorf("CleanCharacterName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompactHan(t *testing.T) {
	if got := CompactHan("李 云 龙"); got != "李云龙" {
		t.Errorf("CompactHan han = %q", got)
	}
	if got := CompactHan("Tony Stark"); got != "Tony Stark" {
		t.Errorf("CompactHan latin = %q", got)
	}
}

func TestIsPlaceholderRole(t *testing.T) {
	for _, role := range []string{"Actor", "actress", "演员", "配音", " Self "} {
		if !IsPlaceholderRole(role) {
			t.Errorf("IsPlaceholderRole(%q) = false, want true", role)
		}
	}
	for _, role := range []string{"李云龙", "Tony Stark", ""} {
		if IsPlaceholderRole(role) {
			t.Errorf("IsPlaceholderRole(%q) = true, want false", role)
		}
	}
}

func TestPredominantlyLatin(t *testing.T) {
	if !PredominantlyLatin("John Smith") {
		t.Error("expected latin for John Smith")
	}
	if PredominantlyLatin("张伟") {
		t.Error("expected non-latin for 张伟")
	}
}

func TestNameSignature(t *testing.T) {
	if NameSignature("John Smith") != NameSignature("john  smith ") {
		t.Error("signatures should match regardless of case and spacing")
	}
}
