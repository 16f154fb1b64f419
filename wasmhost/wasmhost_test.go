package wasmhost

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/helioptic/kernelpool"
	"github.com/helioptic/kernelpool/errors"
)

// fakeGuest implements the guest seam with a bump allocator and a kernel
// list, dispatching calls by role so export names can be remapped.
type fakeGuest struct {
	roles     map[string]string
	mem       []byte
	next      uint32
	live      map[uint32]uint32
	calls     []string
	status    map[string]int32
	traps     map[string]error
	message   string
	loaded    []string
	nullAlloc bool
	closed    bool
}

func newFakeGuest() *fakeGuest {
	return &fakeGuest{
		roles: map[string]string{
			"furnsh": "load",
			"unload": "unload",
			"ktotal": "count",
			"errmsg": "errmsg",
			"malloc": "alloc",
			"free":   "free",
		},
		mem:    make([]byte, 1<<16),
		next:   16,
		live:   make(map[uint32]uint32),
		status: make(map[string]int32),
		traps:  make(map[string]error),
	}
}

func (f *fakeGuest) rename(from, to string) {
	f.roles[to] = f.roles[from]
	delete(f.roles, from)
}

func (f *fakeGuest) drop(name string) {
	delete(f.roles, name)
}

func (f *fakeGuest) has(name string) bool {
	_, ok := f.roles[name]
	return ok
}

func (f *fakeGuest) call(_ context.Context, name string, stack []uint64) error {
	role, ok := f.roles[name]
	if !ok {
		return errors.MissingExport(name)
	}
	f.calls = append(f.calls, name)
	if err := f.traps[name]; err != nil {
		return err
	}

	switch role {
	case "alloc":
		if f.nullAlloc {
			stack[0] = 0
			return nil
		}
		size := uint32(stack[0])
		ptr := f.next
		f.next += (size + 7) &^ 7
		f.live[ptr] = size
		stack[0] = uint64(ptr)
	case "free":
		delete(f.live, uint32(stack[0]))
	case "load":
		kernel := f.str(stack)
		if st := f.status[name]; st != 0 {
			stack[0] = uint64(uint32(st))
			return nil
		}
		f.loaded = append(f.loaded, kernel)
		stack[0] = 0
	case "unload":
		kernel := f.str(stack)
		if st := f.status[name]; st != 0 {
			stack[0] = uint64(uint32(st))
			return nil
		}
		for i, k := range f.loaded {
			if k == kernel {
				f.loaded = append(f.loaded[:i], f.loaded[i+1:]...)
				break
			}
		}
		stack[0] = 0
	case "count":
		stack[0] = uint64(uint32(len(f.loaded)))
	case "errmsg":
		ptr, capacity := uint32(stack[0]), uint32(stack[1])
		n := copy(f.mem[ptr:ptr+capacity], f.message)
		stack[0] = uint64(uint32(n))
	}
	return nil
}

func (f *fakeGuest) str(stack []uint64) string {
	ptr, length := uint32(stack[0]), uint32(stack[1])
	return string(f.mem[ptr : ptr+length])
}

func (f *fakeGuest) read(offset, length uint32) ([]byte, error) {
	if int(offset)+int(length) > len(f.mem) {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	out := make([]byte, length)
	copy(out, f.mem[offset:])
	return out, nil
}

func (f *fakeGuest) write(offset uint32, data []byte) error {
	if int(offset)+len(data) > len(f.mem) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	copy(f.mem[offset:], data)
	return nil
}

func (f *fakeGuest) close(context.Context) error {
	f.closed = true
	return nil
}

func TestHostLoadUnloadRoundTrip(t *testing.T) {
	fg := newFakeGuest()
	h, err := newHost(fg, ExportNames{})
	if err != nil {
		t.Fatalf("newHost: %v", err)
	}
	ctx := context.Background()

	if err := h.Load(ctx, "data/de440.bsp"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(fg.loaded) != 1 || fg.loaded[0] != "data/de440.bsp" {
		t.Errorf("guest loaded = %v, want the exact kernel path", fg.loaded)
	}

	if err := h.Unload(ctx, "data/de440.bsp"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if len(fg.loaded) != 0 {
		t.Errorf("guest still holds %v after unload", fg.loaded)
	}

	// Every path marshaled into guest memory was released again.
	if len(fg.live) != 0 {
		t.Errorf("%d guest allocation(s) leaked", len(fg.live))
	}
}

func TestHostLoadStatusBecomesError(t *testing.T) {
	fg := newFakeGuest()
	fg.status["furnsh"] = 3
	fg.message = "SPICE(NOSUCHFILE) -- The attempt to load failed."

	h, err := newHost(fg, ExportNames{})
	if err != nil {
		t.Fatalf("newHost: %v", err)
	}

	err = h.Load(context.Background(), "gone.bsp")
	if err == nil {
		t.Fatal("expected error for nonzero status")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindToolkitFailure}) {
		t.Errorf("error = %v, want a host toolkit_failure", err)
	}
	for _, want := range []string{"status 3", "SPICE(NOSUCHFILE)"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not contain %q", err, want)
		}
	}
	if len(fg.loaded) != 0 {
		t.Errorf("guest recorded a load despite failure: %v", fg.loaded)
	}
	if len(fg.live) != 0 {
		t.Errorf("%d guest allocation(s) leaked on the error path", len(fg.live))
	}
}

func TestHostTrapBecomesError(t *testing.T) {
	fg := newFakeGuest()
	trap := stderrors.New("wasm error: unreachable")
	fg.traps["unload"] = trap

	h, err := newHost(fg, ExportNames{})
	if err != nil {
		t.Fatalf("newHost: %v", err)
	}

	err = h.Unload(context.Background(), "a.tm")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindGuestTrap}) {
		t.Errorf("error = %v, want a guest_trap", err)
	}
	if !stderrors.Is(err, trap) {
		t.Errorf("trap cause not reachable in %v", err)
	}
}

func TestHostCount(t *testing.T) {
	fg := newFakeGuest()
	h, err := newHost(fg, ExportNames{})
	if err != nil {
		t.Fatalf("newHost: %v", err)
	}
	ctx := context.Background()

	for _, k := range []string{"a.tm", "b.bsp"} {
		if err := h.Load(ctx, k); err != nil {
			t.Fatalf("Load(%s): %v", k, err)
		}
	}
	n, err := h.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestHostCountWithoutExport(t *testing.T) {
	fg := newFakeGuest()
	fg.drop("ktotal")

	h, err := newHost(fg, ExportNames{})
	if err != nil {
		t.Fatalf("newHost: %v", err)
	}

	_, err = h.Count(context.Background())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindMissingExport}) {
		t.Errorf("Count error = %v, want missing_export", err)
	}
}

func TestNewHostChecksRequiredExports(t *testing.T) {
	fg := newFakeGuest()
	fg.drop("unload")

	_, err := newHost(fg, ExportNames{})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindMissingExport}) {
		t.Fatalf("newHost error = %v, want missing_export", err)
	}
	if !strings.Contains(err.Error(), "unload") {
		t.Errorf("error %q does not name the missing export", err)
	}
}

func TestHostCustomExportNames(t *testing.T) {
	fg := newFakeGuest()
	fg.rename("furnsh", "spice_load")
	fg.rename("unload", "spice_unload")

	h, err := newHost(fg, ExportNames{Load: "spice_load", Unload: "spice_unload"})
	if err != nil {
		t.Fatalf("newHost: %v", err)
	}
	ctx := context.Background()

	if err := h.Load(ctx, "a.tm"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := h.Unload(ctx, "a.tm"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if got := strings.Join(fg.calls, "; "); !strings.Contains(got, "spice_load") ||
		!strings.Contains(got, "spice_unload") {
		t.Errorf("calls = %q, want the renamed exports", got)
	}
}

func TestHostAllocFailure(t *testing.T) {
	fg := newFakeGuest()
	fg.nullAlloc = true

	h, err := newHost(fg, ExportNames{})
	if err != nil {
		t.Fatalf("newHost: %v", err)
	}

	err = h.Load(context.Background(), "a.tm")
	if err == nil || !strings.Contains(err.Error(), "null") {
		t.Errorf("Load error = %v, want an allocator failure", err)
	}
}

func TestHostBackedPool(t *testing.T) {
	fg := newFakeGuest()
	h, err := newHost(fg, ExportNames{})
	if err != nil {
		t.Fatalf("newHost: %v", err)
	}

	pool, err := kernelpool.New(h, "naif0012.tls", "de440.bsp")
	if err != nil {
		t.Fatalf("New pool: %v", err)
	}

	err = pool.Run(context.Background(), func(ctx context.Context) error {
		n, err := h.Count(ctx)
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("guest pool holds %d kernel(s) during work, want 2", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fg.loaded) != 0 {
		t.Errorf("guest still holds %v after Run", fg.loaded)
	}
	if len(fg.live) != 0 {
		t.Errorf("%d guest allocation(s) leaked", len(fg.live))
	}
}

func TestHostClose(t *testing.T) {
	fg := newFakeGuest()
	h, err := newHost(fg, ExportNames{})
	if err != nil {
		t.Fatalf("newHost: %v", err)
	}

	if err := h.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fg.closed {
		t.Error("Close did not release the guest")
	}
}

func TestNewRequiresModuleBytes(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}) {
		t.Errorf("New error = %v, want invalid_input", err)
	}
}
