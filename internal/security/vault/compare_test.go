package vault

import (
	"strings"
	"testing"
)

func TestSecureCompare(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want bool
	}{
		{"", "", true},
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"abc", "abcd", false}, // longitudes distintas, mismo costo
		{strings.Repeat("k", 1000), strings.Repeat("k", 1000), true},
		{strings.Repeat("k", 1000), "k", false},
	}
	for _, c := range cases {
		if got := SecureCompare(c.a, c.b); got != c.want {
			t.Fatalf("SecureCompare(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestHashAndHMAC(t *testing.T) {
	t.Parallel()

	// sha256("") vector conocido
	got, err := Hash("", SHA256)
	if err != nil {
		t.Fatal(err)
	}
	if got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("sha256 empty vector mismatch: %s", got)
	}

	// default = sha256
	def, _ := Hash("data", "")
	s256, _ := Hash("data", SHA256)
	if def != s256 {
		t.Fatalf("default algorithm should be sha256")
	}

	for _, alg := range []Algorithm{SHA256, SHA512, SHA3_256} {
		h, err := Hash("payload", alg)
		if err != nil || h == "" {
			t.Fatalf("Hash(%s): %q %v", alg, h, err)
		}
		m, err := HMAC("payload", []byte("secret"), alg)
		if err != nil || m == "" {
			t.Fatalf("HMAC(%s): %q %v", alg, m, err)
		}
		if m == h {
			t.Fatalf("HMAC must differ from plain hash for %s", alg)
		}
	}

	if _, err := Hash("x", "md5"); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	tok1, err := GenerateToken(32)
	if err != nil {
		t.Fatal(err)
	}
	tok2, err := GenerateToken(32)
	if err != nil {
		t.Fatal(err)
	}
	if tok1 == tok2 {
		t.Fatalf("tokens must be random")
	}
	if strings.ContainsAny(tok1, "+/=") {
		t.Fatalf("token must be base64url without padding: %q", tok1)
	}
}

func TestGenerateSecret_Base32Alphabet(t *testing.T) {
	t.Parallel()

	s, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 32 {
		t.Fatalf("secret length = %d, want 32", len(s))
	}
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	for _, r := range s {
		if !strings.ContainsRune(alphabet, r) {
			t.Fatalf("secret contains non-base32 rune %q", r)
		}
	}
}
