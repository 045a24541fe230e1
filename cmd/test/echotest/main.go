package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Port        int    `long:"port" env:"PORT" description:"port to listen on"`
	HealthPath  string `long:"health-path" default:"/health" description:"path answering 200"`
	RunDuration int    `long:"run-duration" description:"Duration in seconds to run (debug feature)"`
	FailAfter   int    `long:"fail-after" description:"answer 500 on the health path after this many seconds (debug feature)"`
	IgnoreTerm  bool   `long:"ignore-term" description:"ignore SIGTERM so only a kill stops the process (debug feature)"`
	ExitCode    int    `long:"exit-immediately" description:"print a diagnostic and exit with this code (debug feature)"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Running Echotest, opts: %+v...\n", opts)

	if opts.ExitCode != 0 {
		fmt.Fprintf(os.Stderr, "Echotest exiting on request, port %d\n", opts.Port)
		os.Exit(opts.ExitCode)
	}
	if opts.Port == 0 {
		fmt.Println("Port is required (--port or $PORT)")
		os.Exit(1)
	}

	ctx := context.Background()
	if opts.RunDuration > 0 {
		fmt.Printf("Using RUN DURATION of %d seconds\n", opts.RunDuration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.RunDuration)*time.Second)
		defer cancel()
	}

	started := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc(opts.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		if opts.FailAfter > 0 && time.Since(started) > time.Duration(opts.FailAfter)*time.Second {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintln(w, "failing on request")
			return
		}
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", opts.Port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	// Enable signal handling
	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else if opts.IgnoreTerm {
		signal.Ignore(syscall.SIGTERM)
		signal.Notify(sig, os.Interrupt)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	fmt.Printf("Echotest is listening on port %d\n", opts.Port)

	select {
	case receivedSignal := <-sig:
		fmt.Printf("Echotest received signal: %v\n", receivedSignal)
	case err := <-serveErr:
		fmt.Fprintf(os.Stderr, "Echotest failed: %v\n", err)
		os.Exit(1)
	case <-ctx.Done():
		fmt.Printf("Echotest timed out\n")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	fmt.Printf("Echotest stopped\n")
}
