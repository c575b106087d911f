package textutil

import (
	"strings"
	"testing"
)

func TestStripPhoneSeparators(t *testing.T) {
	t.Helper()

	cases := map[string]string{
		"071-234 5678":      "0712345678",
		"+94 (71) 234-5678": "94712345678",
		"０７１２３４５６７８":        "0712345678",
		"  0712345678\t":    "0712345678",
		"071.234.5678":      "071.234.5678",
	}
	for input, want := range cases {
		if got := StripPhoneSeparators(input); got != want {
			t.Errorf("StripPhoneSeparators(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestIsDigits(t *testing.T) {
	if !IsDigits("0712345678") {
		t.Fatalf("expected digits")
	}
	for _, value := range []string{"", "071a", "071.2"} {
		if IsDigits(value) {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}

func TestPlainText(t *testing.T) {
	t.Run("strips markup", func(t *testing.T) {
		got := PlainText(`Happy <b>Birthday</b> <script>alert(1)</script>Amma`)
		if got != "Happy Birthday Amma" {
			t.Fatalf("unexpected sanitized text %q", got)
		}
	})

	t.Run("keeps ampersands readable", func(t *testing.T) {
		got := PlainText("  Tom   & Jerry ")
		if got != "Tom & Jerry" {
			t.Fatalf("unexpected text %q", got)
		}
	})

	t.Run("does not revive escaped markup", func(t *testing.T) {
		got := PlainText("&lt;b&gt;Happy&lt;/b&gt; Birthday")
		if got != "Happy Birthday" {
			t.Fatalf("unexpected text %q", got)
		}
		if got := PlainText("&amp;lt;script&amp;gt;alert(1)&amp;lt;/script&amp;gt;Amma"); got != "Amma" {
			t.Fatalf("double escaped markup survived: %q", got)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		inputs := []string{
			"&lt;b&gt;Happy&lt;/b&gt; Birthday",
			"<<b>b>bold</b>",
			"I <3 cake & cream",
			"Tom's \"big\" day",
			strings.Repeat("&amp;", 12) + "lt;i&gt;deep",
		}
		for _, input := range inputs {
			once := PlainText(input)
			if twice := PlainText(once); twice != once {
				t.Fatalf("PlainText(%q) = %q, but applying it again gives %q", input, once, twice)
			}
			if strings.Contains(once, "<b>") || strings.Contains(once, "<i>") {
				t.Fatalf("markup survived in %q", once)
			}
		}
	})
}

func TestFirstNonBlank(t *testing.T) {
	if got := FirstNonBlank("  ", "", " nested ", "flat"); got != "nested" {
		t.Fatalf("expected nested, got %q", got)
	}
	if got := FirstNonBlank(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
