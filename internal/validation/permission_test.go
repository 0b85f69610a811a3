package validation

import "testing"

func TestValidPermission_Valid(t *testing.T) {
	valids := []string{
		"a",
		"ab",
		"profile",
		"sessions:read",
		"leave_request:approve",
		"a_b-c.d:scope2",
		mkLen(64), // largo máximo
	}
	for _, v := range valids {
		if !ValidPermission(v) {
			t.Fatalf("expected valid: %q", v)
		}
	}
}

func TestValidPermission_Invalid(t *testing.T) {
	invalids := []string{
		"",
		":lead",
		"trail:",
		"bad space",
		"UPPER",
		"semicolon;hack",
		mkLen(65),
	}
	for _, v := range invalids {
		if ValidPermission(v) {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}

func mkLen(total int) string {
	out := make([]byte, total)
	for i := range out {
		out[i] = 'a'
	}
	return string(out)
}
