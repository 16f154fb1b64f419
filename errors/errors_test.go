package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "load failure with kernel and cause",
			err:  LoadFailed("data/de440.bsp", stderrors.New("SPICE(NOSUCHFILE)")),
			contains: []string{
				"[load]",
				"toolkit_failure",
				`kernel "data/de440.bsp"`,
				"caused by: SPICE(NOSUCHFILE)",
			},
		},
		{
			name: "unload failure",
			err:  UnloadFailed("meta.tm", stderrors.New("pool corrupted")),
			contains: []string{
				"[unload]",
				"toolkit_failure",
				`kernel "meta.tm"`,
				"caused by: pool corrupted",
			},
		},
		{
			name: "file missing",
			err:  FileMissing("gone.bsp", stderrors.New("no such file or directory")),
			contains: []string{
				"[verify]",
				"file_missing",
				`kernel "gone.bsp"`,
			},
		},
		{
			name:     "not a file",
			err:      NotAFile("kernels"),
			contains: []string{"[verify]", "invalid_input", "not a regular file"},
		},
		{
			name:     "invalid input without kernel",
			err:      InvalidInput(PhaseConfig, "no kernels given"),
			contains: []string{"[config]", "invalid_input", "no kernels given"},
		},
		{
			name:     "not initialized",
			err:      NotInitialized("host runtime"),
			contains: []string{"[host]", "not_initialized", "host runtime not initialized"},
		},
		{
			name:     "missing export",
			err:      MissingExport("furnsh"),
			contains: []string{"[host]", "missing_export", `"furnsh"`},
		},
		{
			name:     "guest trap",
			err:      GuestTrap("unload", stderrors.New("wasm trap: unreachable")),
			contains: []string{"[host]", "guest_trap", "call unload", "wasm trap"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("message %q does not contain %q", msg, want)
				}
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	cause := stderrors.New("boom")
	err := LoadFailed("a.tm", cause)

	if !stderrors.Is(err, &Error{Phase: PhaseLoad, Kind: KindToolkitFailure}) {
		t.Error("expected match on phase and kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseUnload, Kind: KindToolkitFailure}) {
		t.Error("unexpected match across phases")
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
}

func TestErrorAs(t *testing.T) {
	var structured *Error
	err := Wrap(PhaseHost, KindInvalidData, stderrors.New("short read"), "result decode")

	if !stderrors.As(err, &structured) {
		t.Fatal("expected errors.As to extract *Error")
	}
	if structured.Kind != KindInvalidData {
		t.Errorf("kind = %q, want %q", structured.Kind, KindInvalidData)
	}
}

func TestPartialLoadError(t *testing.T) {
	cause := stderrors.New("SPICE(BADKERNELTYPE)")
	err := &PartialLoadError{
		Err:    LoadFailed("c.bsp", cause),
		Loaded: []string{"a.tm", "b.bpc"},
	}

	msg := err.Error()
	for _, want := range []string{"2 kernel(s) left loaded", "a.tm", "b.bpc", `kernel "c.bsp"`} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q does not contain %q", msg, want)
		}
	}

	if !stderrors.Is(err, cause) {
		t.Error("expected cause to be reachable through the wrapped load failure")
	}
	if !stderrors.Is(err, &PartialLoadError{}) {
		t.Error("expected match on error type")
	}

	var structured *Error
	if !stderrors.As(err, &structured) {
		t.Fatal("expected errors.As to find the inner load failure")
	}
	if structured.Kernel != "c.bsp" {
		t.Errorf("kernel = %q, want %q", structured.Kernel, "c.bsp")
	}
}
