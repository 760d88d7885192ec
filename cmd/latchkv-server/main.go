// Command latchkv-server is the process entrypoint named by SPEC_FULL.md
// §9: it parses flags with flash-flags (already an indirect dependency of
// the core library, pulled in transitively through argus, promoted here to
// a direct one with a concrete use), builds a Cache, wires a zap-backed
// Logger and a Prometheus MetricsCollector, and serves one of the three
// dispatcher skins (tcp, epoll, fifo) around it.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	flashflags "github.com/agilira/flash-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/latchkv/latchkv"
	"github.com/latchkv/latchkv/metrics/prometheus"
	"github.com/latchkv/latchkv/server/epoll"
	"github.com/latchkv/latchkv/server/fifo"
	"github.com/latchkv/latchkv/server/tcp"
)

func main() {
	fs := flashflags.New("latchkv-server")
	mode := fs.String("mode", "tcp", "dispatcher mode: tcp, epoll, or fifo")
	addr := fs.String("addr", ":11211", "listen address (tcp/epoll modes)")
	readFIFO := fs.String("read-fifo", "/tmp/latchkv.in", "read FIFO path (fifo mode)")
	writeFIFO := fs.String("write-fifo", "/tmp/latchkv.out", "write FIFO path (fifo mode)")
	maxSize := fs.Int("max-size", latchkv.DefaultMaxSize, "LRU store capacity in bytes")
	batchSize := fs.Int("batch-size", latchkv.DefaultBatchSize, "combiner batch size")
	maxWorkers := fs.Int("max-workers", 0, "max concurrent connections (tcp mode); 0 = unbounded")
	metricsAddr := fs.String("metrics-addr", ":9090", "Prometheus /metrics listen address; empty disables it")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	zlog, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "latchkv-server: failed to build logger:", err)
		os.Exit(1)
	}
	defer zlog.Sync()
	logger := &zapLogger{z: zlog.Sugar()}

	collector := prometheus.New(prometheus.Options{Namespace: "latchkv"})

	cache := latchkv.NewCache(latchkv.Config{
		MaxSize:          *maxSize,
		BatchSize:        *batchSize,
		Logger:           logger,
		MetricsCollector: collector,
	})
	defer cache.Close()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "tcp":
		runTCP(ctx, cache, logger, *addr, *maxWorkers)
	case "epoll":
		runEpoll(ctx, cache, logger, *addr)
	case "fifo":
		runFIFO(ctx, cache, logger, *readFIFO, *writeFIFO)
	default:
		fmt.Fprintf(os.Stderr, "latchkv-server: unknown mode %q (want tcp, epoll, or fifo)\n", *mode)
		os.Exit(2)
	}
}

func serveMetrics(addr string, logger latchkv.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("latchkv-server: metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("latchkv-server: metrics server exited", "error", err.Error())
	}
}

func runTCP(ctx context.Context, cache latchkv.Cache, logger latchkv.Logger, addr string, maxWorkers int) {
	srv := tcp.New(cache, logger, maxWorkers)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		logger.Error("latchkv-server: tcp server exited", "error", err.Error())
		os.Exit(1)
	}
}

func runEpoll(ctx context.Context, cache latchkv.Cache, logger latchkv.Logger, addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("latchkv-server: listen failed", "error", err.Error())
		os.Exit(1)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		logger.Error("latchkv-server: epoll mode requires a TCP listener")
		os.Exit(1)
	}
	f, err := tcpLn.File()
	if err != nil {
		logger.Error("latchkv-server: failed to get listener fd", "error", err.Error())
		os.Exit(1)
	}
	// The duplicated fd returned by File() is blocking by default; epoll
	// needs it non-blocking, matching ServerSocket's own setup.
	_ = unix.SetNonblock(int(f.Fd()), true)

	srv, err := epoll.New(cache, logger, int(f.Fd()))
	if err != nil {
		logger.Error("latchkv-server: epoll setup failed", "error", err.Error())
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		srv.Stop()
	}()

	logger.Info("latchkv-server: epoll listening", "addr", addr)
	srv.Serve()
}

func runFIFO(ctx context.Context, cache latchkv.Cache, logger latchkv.Logger, readPath, writePath string) {
	srv := fifo.New(cache, logger)

	go func() {
		<-ctx.Done()
		srv.Stop()
	}()

	if err := srv.Serve(readPath, writePath); err != nil {
		logger.Error("latchkv-server: fifo server exited", "error", err.Error())
		os.Exit(1)
	}
}

// zapLogger adapts *zap.SugaredLogger to latchkv.Logger's keyvals shape.
type zapLogger struct{ z *zap.SugaredLogger }

func (l *zapLogger) Debug(msg string, keyvals ...interface{}) { l.z.Debugw(msg, keyvals...) }
func (l *zapLogger) Info(msg string, keyvals ...interface{})  { l.z.Infow(msg, keyvals...) }
func (l *zapLogger) Warn(msg string, keyvals ...interface{})  { l.z.Warnw(msg, keyvals...) }
func (l *zapLogger) Error(msg string, keyvals ...interface{}) { l.z.Errorw(msg, keyvals...) }
