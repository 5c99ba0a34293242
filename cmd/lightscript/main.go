// Command lightscript compiles one or more lightscript sources (config
// files then the user script) into a schedule, and optionally plays it on a
// connected controller with music.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/picolume/lightscript/internal/api"
	"github.com/picolume/lightscript/internal/config"
	"github.com/picolume/lightscript/internal/metrics"
)

func main() {
	deviceName := flag.String("device", "", "controller device: serial path, \"usb\", or host[:port]")
	scriptDir := flag.String("dir", "", "script directory (music search root; default: first file's directory)")
	withMusic := flag.Bool("music", false, "play the script's music track during playback")
	printSched := flag.Bool("print", false, "print the generated schedule and exit")
	metricsAddr := flag.String("metrics", "", "optional /metrics listen address")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: lightscript [flags] <config files...> <script>")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	if *deviceName != "" {
		cfg.Device = *deviceName
	}
	if *scriptDir != "" {
		cfg.ScriptDir = *scriptDir
	} else if cfg.ScriptDir == "." {
		cfg.ScriptDir = filepath.Dir(files[0])
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.Printf("metrics: %v", err)
			}
		}()
	}

	ctx := api.NewContext(cfg)
	ctx.SetStatusCallback(func(iserror bool, line string) {
		if iserror {
			fmt.Fprintf(os.Stderr, "[ERR ] %s\n", line)
		} else {
			fmt.Printf("[INFO] %s\n", line)
		}
	})

	for _, f := range files {
		if rc := ctx.TokenizeFile(f); rc != api.OK {
			os.Exit(1)
		}
	}
	if rc := ctx.ParseScript(); rc != api.OK {
		if line := ctx.GetErrorLine(); line > 0 {
			fmt.Fprintf(os.Stderr, "error at line %d\n", line)
		}
		os.Exit(1)
	}

	if *printSched {
		ctx.PrintSchedule()
		return
	}
	if cfg.Device == "" {
		log.Printf("no device configured; compile-only run complete (%d records)", ctx.Schedule().Size())
		return
	}

	ctx.SetDevice(cfg.Device)
	if rc := ctx.Connect(); rc != api.OK {
		os.Exit(1)
	}
	defer ctx.Shutdown()

	ctx.SetTimeCallback(func(t float64) {
		fmt.Printf("Time: %5.2f\r", t)
	})
	done := make(chan struct{})
	ctx.SetPlaybackEndCallback(func() {
		close(done)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\n[interrupt]")
		ctx.PlaybackStop()
	}()

	if rc := ctx.PlaybackStart(*withMusic); rc != api.OK {
		os.Exit(1)
	}
	ctx.PlaybackWait()
	<-done
	fmt.Println()
}
