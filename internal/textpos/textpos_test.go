package textpos

import "testing"

func TestLine(t *testing.T) {
	text := "first\r\nsecond\nthird"
	tests := []struct {
		n    int
		want string
	}{
		{0, "first"},
		{1, "second"},
		{2, "third"},
		{3, ""},
		{-1, ""},
	}
	for _, tt := range tests {
		if got := Line(text, tt.n); got != tt.want {
			t.Errorf("Line(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestLines(t *testing.T) {
	got := Lines("a\r\nb\n")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "" {
		t.Errorf("Lines = %q", got)
	}
	if got := Lines(""); len(got) != 1 {
		t.Errorf("Lines(\"\") = %q, want one empty line", got)
	}
}

func TestUTF16Conversions(t *testing.T) {
	s := "a😀b" // 😀 is 4 bytes, 2 UTF-16 units

	if got := UTF16Len(s); got != 4 {
		t.Errorf("UTF16Len = %d, want 4", got)
	}

	tests := []struct {
		utf16 int
		bytes int
	}{
		{0, 0},
		{1, 1},
		{3, 5},
		{4, 6},
		{99, 6},
	}
	for _, tt := range tests {
		if got := ByteOffset(s, tt.utf16); got != tt.bytes {
			t.Errorf("ByteOffset(%d) = %d, want %d", tt.utf16, got, tt.bytes)
		}
	}

	if got := UTF16Offset(s, 5); got != 3 {
		t.Errorf("UTF16Offset(5) = %d, want 3", got)
	}
	if got := UTF16Offset(s, 100); got != 4 {
		t.Errorf("UTF16Offset(100) = %d, want 4", got)
	}
}
