package extract

import "testing"

func TestContentText(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{
			name:   "simple Tj",
			stream: "BT /F1 12 Tf 72 712 Td (Check oil level) Tj ET",
			want:   "Check oil level",
		},
		{
			name:   "lines from Td and T*",
			stream: "BT (Step 1) Tj 0 -14 Td (Open valve) Tj T* (Close valve) Tj ET",
			want:   "Step 1\nOpen valve\nClose valve",
		},
		{
			name:   "TJ array with kerning gap",
			stream: "BT [(Hydr) 20 (aulic) -300 (pump)] TJ ET",
			want:   "Hydraulic pump",
		},
		{
			name:   "escapes and nested parens",
			stream: `BT (Torque \(Nm\): 40) Tj T* (a\\b) Tj ET`,
			want:   "Torque (Nm): 40\na\\b",
		},
		{
			name:   "octal escape is latin-1",
			stream: `BT (40\260C) Tj ET`,
			want:   "40°C",
		},
		{
			name:   "hex string",
			stream: "BT <48656C6C6F> Tj ET",
			want:   "Hello",
		},
		{
			name:   "utf-16 with bom",
			stream: "BT <FEFF00500075006D00700065> Tj ET",
			want:   "Pumpe",
		},
		{
			name:   "quote operator starts a new line",
			stream: "BT (first) Tj (second) ' ET",
			want:   "first\nsecond",
		},
		{
			name:   "graphics operators and dictionaries ignored",
			stream: "q 1 0 0 1 0 0 cm /GS1 gs << /MCID 0 >> BDC BT (text) Tj ET EMC Q",
			want:   "text",
		},
		{
			name:   "inline image skipped",
			stream: "BI /W 2 /H 2 /BPC 8 ID \x00\x01(\x02\x03 EI BT (after) Tj ET",
			want:   "after",
		},
		{
			name:   "comments skipped",
			stream: "% a comment (not text) Tj\nBT (real) Tj ET",
			want:   "real",
		},
		{
			name:   "empty",
			stream: "",
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contentText([]byte(tt.stream)); got != tt.want {
				t.Errorf("contentText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeLines(t *testing.T) {
	got := normalizeLines("  a   b \n\n\t\nc  ")
	if got != "a b\nc" {
		t.Errorf("normalizeLines() = %q", got)
	}
}
