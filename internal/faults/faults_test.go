package faults

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection refused")
	err := E(KindTransientRemote, "sources.login", base)

	if got := KindOf(err); got != KindTransientRemote {
		t.Errorf("Expected KindTransientRemote, got %v", got)
	}
	if !errors.Is(err, base) {
		t.Error("Expected wrapped error to match errors.Is")
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := E(KindTransientLocalIO, "normalizer.decode", errors.New("bad header"))
	wrapped := fmt.Errorf("failed to process file: %w", err)

	if got := KindOf(wrapped); got != KindTransientLocalIO {
		t.Errorf("Expected kind to survive wrapping, got %v", got)
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("Expected KindUnknown for plain error, got %v", got)
	}
}

func TestIsKind(t *testing.T) {
	err := E(KindSchemaInvalid, "store.open", errors.New("version 0"))
	if !IsKind(err, KindSchemaInvalid) {
		t.Error("Expected IsKind to match")
	}
	if IsKind(err, KindTransientRemote) {
		t.Error("Expected IsKind to reject other kinds")
	}
}

func TestErrorString(t *testing.T) {
	err := E(KindStoreContention, "store.insert", errors.New("database is locked"))
	want := "store.insert: database is locked"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	bare := E(KindConfigInvalid, "config.load", nil)
	want = "config.load: config-invalid"
	if bare.Error() != want {
		t.Errorf("Expected %q, got %q", want, bare.Error())
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindUnknown:          "unknown",
		KindTransientRemote:  "transient-remote",
		KindTransientLocalIO: "transient-local-io",
		KindStoreContention:  "store-contention",
		KindSchemaInvalid:    "schema-invalid",
		KindConfigInvalid:    "config-invalid",
	}
	for kind, want := range cases {
		if kind.String() != want {
			t.Errorf("Expected %q for kind %d, got %q", want, kind, kind.String())
		}
	}
}
