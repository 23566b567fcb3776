package control

import (
	"testing"

	"github.com/jive5ge/jive5ge/internal/errs"
)

func TestOKEchoesQueryChar(t *testing.T) {
	got := OK("mode", true, "record", "mark5b")
	want := "!mode? 0 : record : mark5b ;"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOKEchoesAssignmentChar(t *testing.T) {
	got := OK("mode", false, "record", "mark5b")
	want := "!mode= 0 : record : mark5b ;"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestErrorUsesKindCodeAndEchoesQueryChar(t *testing.T) {
	e := errs.New(errs.KindMode, "cannot do that now")
	got := Error("mode", true, e)
	want := "!mode? 6 : cannot do that now ;"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestErrorEchoesAssignmentChar(t *testing.T) {
	e := errs.New(errs.KindMode, "cannot do that now")
	got := Error("mode", false, e)
	want := "!mode= 6 : cannot do that now ;"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
