package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestStandardErrorFormat(t *testing.T) {
	err := UnsupportedOpcode("main", 3, "op(99)")
	if err.Category != CategorySelection || err.Code != "UNSUPPORTED_OPCODE" {
		t.Errorf("unexpected category/code: %s/%s", err.Category, err.Code)
	}
	if !strings.HasPrefix(err.Error(), "[SELECTION:UNSUPPORTED_OPCODE] Unsupported opcode op(99) at main#3") {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !strings.Contains(err.Caller, "TestStandardErrorFormat") && !strings.Contains(err.Caller, "UnsupportedOpcode") {
		t.Errorf("caller not recorded: %q", err.Caller)
	}
}

func TestStandardErrorIs(t *testing.T) {
	err := PointerAlias("f", 1, "%p", "%p")
	if !stderrors.Is(err, &StandardError{Category: CategorySelection, Code: "POINTER_ALIAS"}) {
		t.Error("Expected errors.Is to match on category and code")
	}
	if stderrors.Is(err, &StandardError{Category: CategoryLayout, Code: "POINTER_ALIAS"}) {
		t.Error("Expected a different category not to match")
	}
}
