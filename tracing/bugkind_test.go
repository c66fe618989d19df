package tracing

import "testing"

func TestErrorKindStrings(t *testing.T) {
	cases := map[ErrorKind]string{
		ErrorKindNone:      "none",
		ErrorKindOpcode:    "opcode_error",
		ErrorKindHost:      "host_error",
		ErrorKindCheatcode: "cheatcode_error",
		ErrorKindAssertion: "assertion_error",
		ErrorKindOracleBug: "oracle_bug",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestHostErrorExcludedFromCorpus(t *testing.T) {
	if ErrorKindHost.AffectsCorpus() {
		t.Error("ErrorKindHost must not be eligible for corpus addition")
	}
	for _, k := range []ErrorKind{ErrorKindNone, ErrorKindOpcode, ErrorKindCheatcode, ErrorKindAssertion, ErrorKindOracleBug} {
		if !k.AffectsCorpus() {
			t.Errorf("%v should be corpus-eligible", k)
		}
	}
}
