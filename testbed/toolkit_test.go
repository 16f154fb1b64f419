package testbed

import (
	"context"
	"os"
	"testing"

	"github.com/helioptic/kernelpool"
	"github.com/helioptic/kernelpool/wasmhost"
)

// TestToolkitModuleCycle drives a toolkit shim compiled to wasm32-wasi
// through a complete pool cycle. Build the shim and place it next to this
// file to enable the test.
func TestToolkitModuleCycle(t *testing.T) {
	ctx := context.Background()

	wasmBytes, err := os.ReadFile("toolkit.wasm")
	if err != nil {
		t.Skipf("toolkit.wasm not found: %v", err)
	}

	host, err := wasmhost.New(ctx, wasmhost.Config{
		Module: wasmBytes,
		Mounts: map[string]string{"testdata": "/kernels"},
	})
	if err != nil {
		t.Fatalf("start toolkit module: %v", err)
	}
	defer host.Close(ctx)

	pool, err := kernelpool.New(host, "/kernels/naif0012.tls")
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}

	err = pool.Run(ctx, func(ctx context.Context) error {
		n, err := host.Count(ctx)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("pool holds %d kernels during work, want 1", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	n, err := host.Count(ctx)
	if err != nil {
		t.Fatalf("count after cycle: %v", err)
	}
	if n != 0 {
		t.Errorf("pool holds %d kernels after cycle, want 0", n)
	}
}
