package channelid

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "-1001234567890", want: -1001234567890},
		{in: "1234567890", want: -1001234567890},
		{in: "-1234567890", want: -1001234567890},
		{in: " -1002345678901 ", want: -1002345678901},
		{in: "1001", want: -1000000001001},
		{in: "100123456789", want: -1100123456789},
		{in: "-100", wantErr: true},
		{in: "-1001", wantErr: true},
		{in: "-100123456789", wantErr: true},
		{in: "-10012345678901", wantErr: true},
		{in: "", wantErr: true},
		{in: "-", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "12a", wantErr: true},
		{in: "0", wantErr: true},
		{in: "+100123", wantErr: true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) = %d, expected error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		in      string
		want    Ref
		wantErr bool
	}{
		{in: "-1001234567890", want: Ref{ID: -1001234567890}},
		{in: "@durov_news", want: Ref{Username: "durov_news"}},
		{in: "t.me/durov_news", want: Ref{Username: "durov_news"}},
		{in: "https://t.me/durov_news/42", want: Ref{Username: "durov_news"}},
		{in: "plainname", want: Ref{Username: "plainname"}},
		{in: "@a", wantErr: true},
		{in: "@1abc", wantErr: true},
		{in: "bad name", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseRef(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRef(%q) = %+v, expected error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRef(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRef(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestBareExternal(t *testing.T) {
	ids := []int64{1, 1234567890, 2345678901}
	for _, bare := range ids {
		ext := External(bare)
		if Bare(ext) != bare {
			t.Errorf("Bare(External(%d)) = %d", bare, Bare(ext))
		}
		if External(ext) != ext {
			t.Errorf("External not idempotent for %d", ext)
		}
		if Bare(bare) != bare {
			t.Errorf("Bare not idempotent for %d", bare)
		}
	}
	if Format(-1001) != "-1001" {
		t.Errorf("Format = %q", Format(-1001))
	}
}
