package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helioptic/kernelpool"
	"github.com/helioptic/kernelpool/poolmetrics"
	"github.com/helioptic/kernelpool/registry"
	"github.com/helioptic/kernelpool/wasmhost"
)

var (
	checkToolkit  string
	checkMounts   []string
	checkHold     time.Duration
	checkListen   string
	checkRollback bool
	checkVerify   bool
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <set>",
	Short: "Run a full load/unload cycle for a kernel set",
	Long: `Load every kernel of the named set, optionally hold them loaded, then
unload them in reverse order. Without --toolkit the cycle runs against an
in-process registry, which exercises ordering and pairing without touching
kernel contents. With --toolkit it drives a real toolkit module compiled
to WebAssembly.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkToolkit, "toolkit", "", "toolkit wasm module; omit for an in-process dry run")
	checkCmd.Flags().StringArrayVar(&checkMounts, "mount", nil, "host:guest directory mount for the toolkit (repeatable)")
	checkCmd.Flags().DurationVar(&checkHold, "hold", 0, "keep kernels loaded this long before unloading")
	checkCmd.Flags().StringVar(&checkListen, "listen", "", "serve Prometheus metrics on this address during the cycle (e.g. :9400)")
	checkCmd.Flags().BoolVar(&checkRollback, "rollback", false, "unload already-loaded kernels when a later load fails")
	checkCmd.Flags().BoolVar(&checkVerify, "verify", false, "verify kernel files exist before loading")
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	m, err := loadManifest()
	if err != nil {
		return err
	}
	kernels, err := m.Kernels(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()

	tk, cleanup, err := buildToolkit(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	promReg := prometheus.NewRegistry()
	metrics := poolmetrics.New(promReg)

	pool, err := kernelpool.NewWithConfig(kernelpool.Config{
		Toolkit:             tk,
		Kernels:             kernels,
		VerifyFiles:         checkVerify,
		UnloadOnLoadFailure: checkRollback,
		Logger:              logger,
		Observer:            metrics,
	})
	if err != nil {
		return err
	}

	if checkListen != "" {
		srv := serveMetrics(promReg)
		defer srv.Shutdown(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	started := time.Now()
	err = pool.Run(ctx, func(ctx context.Context) error {
		fmt.Printf("Loaded %d kernel(s) from set %q\n", len(kernels), args[0])
		if checkHold <= 0 {
			return nil
		}

		fmt.Printf("Holding for %s (Ctrl+C to release early)\n", checkHold)
		select {
		case <-time.After(checkHold):
		case sig := <-sigChan:
			fmt.Printf("\nReceived %s, releasing kernels\n", sig)
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cycle failed: %w", err)
	}

	fmt.Printf("Cycle complete: %d kernel(s) loaded and unloaded in %s\n",
		len(kernels), time.Since(started).Round(time.Millisecond))
	return nil
}

// buildToolkit picks the toolkit behind the cycle: the wasm module when
// --toolkit is given, the in-process registry otherwise.
func buildToolkit(ctx context.Context, logger *zap.Logger) (kernelpool.Toolkit, func(), error) {
	if checkToolkit == "" {
		fmt.Println("No toolkit module given; using in-process registry (dry run)")
		reg := registry.NewWithConfig(registry.Config{Logger: logger})
		return reg, func() { _ = reg.Close() }, nil
	}

	data, err := os.ReadFile(checkToolkit)
	if err != nil {
		return nil, nil, fmt.Errorf("read toolkit module: %w", err)
	}

	mounts := make(map[string]string, len(checkMounts))
	for _, mnt := range checkMounts {
		hostDir, guestPath, ok := strings.Cut(mnt, ":")
		if !ok {
			guestPath = hostDir
		}
		mounts[hostDir] = guestPath
	}

	wasmhost.SetLogger(logger)
	host, err := wasmhost.New(ctx, wasmhost.Config{
		Module: data,
		Mounts: mounts,
		Stderr: os.Stderr,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start toolkit module: %w", err)
	}
	return host, func() { _ = host.Close(ctx) }, nil
}

// serveMetrics exposes the registry on /metrics in the background.
func serveMetrics(reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: checkListen, Handler: mux}
	go func() {
		fmt.Printf("Serving metrics on http://%s/metrics\n", checkListen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	return srv
}
