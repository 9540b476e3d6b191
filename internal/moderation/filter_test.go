package moderation

import "testing"

func TestNewFilter(t *testing.T) {
	f := NewFilter()
	if f == nil {
		t.Fatal("NewFilter returned nil")
	}
	if len(f.terms) == 0 {
		t.Fatal("NewFilter created an empty filter")
	}
}

func TestCheck_DefaultDenylist(t *testing.T) {
	f := NewFilter()

	tests := []struct {
		name    string
		input   string
		flagged bool
		term    string
	}{
		{"plain link", "see http://example.com now", true, "http"},
		{"https link", "https://spam.example", true, "http"},
		{"uppercase link", "HTTP://EXAMPLE.COM", true, "http"},
		{"solicitation", "продаю аккаунт дёшево", true, "продаю"},
		{"solicitation future", "продам фото", true, "продам"},
		{"embedded term", "быстро ПРОДАМ всё", true, "продам"},
		{"clean message", "hello, how are you?", false, ""},
		{"clean russian", "привет, как дела?", false, ""},
		{"empty message", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Flagged != tt.flagged {
				t.Errorf("Check(%q).Flagged = %v, want %v", tt.input, result.Flagged, tt.flagged)
			}
			if result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
		})
	}
}

func TestCheck_CustomTerms(t *testing.T) {
	f := NewFilterWithTerms([]string{"Badword", "  spaced  ", ""})

	if len(f.terms) != 2 {
		t.Fatalf("filter has %d terms, want 2 (empty dropped, rest trimmed)", len(f.terms))
	}

	result := f.Check("this contains a BADWORD here")
	if !result.Flagged || result.Term != "badword" {
		t.Errorf("Check() = %+v, want flagged with term %q", result, "badword")
	}

	result = f.Check("nothing to see")
	if result.Flagged {
		t.Errorf("Check() flagged a clean message: %+v", result)
	}
}

func TestCheck_FirstTermWins(t *testing.T) {
	f := NewFilterWithTerms([]string{"alpha", "beta"})

	result := f.Check("beta and alpha together")
	if result.Term != "alpha" {
		t.Errorf("Term = %q, want first denylist term %q", result.Term, "alpha")
	}
}
