// voiced - Push-to-talk voice dictation for the Linux desktop
//
//	voiced run              Run the dictation daemon
//	voiced devices          List audio input devices
//	voiced test             Check the transcription endpoint
//	voiced history          Show recent dictation sessions
//	voiced config <action>  Manage configuration
//	voiced version          Show version information
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	gioapp "gioui.org/app"

	"voiced/internal/app"
	"voiced/internal/asr"
	"voiced/internal/clock"
	"voiced/internal/config"
	"voiced/internal/logging"
	"voiced/internal/record"
	"voiced/internal/store"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun()
	case "devices":
		cmdDevices()
	case "test":
		cmdTest()
	case "history":
		cmdHistory()
	case "config":
		cmdConfig()
	case "version":
		fmt.Printf("voiced %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`voiced - Push-to-talk voice dictation

USAGE:
    voiced <command> [options]

COMMANDS:
    run                 Run the dictation daemon
    devices             List audio input devices
    test                Record a short clip and transcribe it
    history             Show recent dictation sessions
    config init         Write a default config file
    config show         Print the effective configuration
    config path         Print the config file location
    version             Show version information
    help                Show this help message

WORKFLOW:
    1. voiced config init         # One-time setup
    2. voiced test                # Verify the whisper server is up
    3. voiced run                 # Start the daemon
    4. Double-tap the trigger key # Dictate into any window

The transcript is pasted into the window that had focus when the
trigger fired. See config(5) comments in the generated file for
tuning.`)
}

func loadConfig(fs *flag.FlagSet) (*config.Loader, *config.Config) {
	path := fs.Lookup("config").Value.String()
	if path == "" {
		path = config.DefaultPath()
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	return loader, cfg
}

func setupLogging(cfg *config.Config) *logging.Logger {
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	format, _ := logging.ParseFormat(cfg.Logging.Format)
	log, err := logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Component: "voiced",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(log)
	return log
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.String("config", "", "config file path")
	fs.Parse(os.Args[2:])

	loader, cfg := loadConfig(fs)
	defer loader.Close()
	log := setupLogging(cfg)
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon := app.New(loader, log)

	// Gio insists on owning the main thread, so the daemon loop runs in
	// a goroutine and exits the process when done.
	go func() {
		if err := daemon.Run(ctx); err != nil {
			log.Error("daemon failed", "error", err)
			os.Exit(1)
		}
		log.Info("voiced exiting")
		os.Exit(0)
	}()
	gioapp.Main()
}

func cmdDevices() {
	devices, err := record.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("No audio input devices found.")
		return
	}
	fmt.Println("Audio input devices:")
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("  %s [%d] %s (%d ch, %s latency)\n", marker, d.Index, d.Name, d.Channels, d.Latency)
	}
	fmt.Println("\n* = system default. Set audio.device_index to choose another.")
}

// cmdTest records a short clip and runs it through the configured
// endpoint so device and connectivity problems surface before a real
// dictation does.
func cmdTest() {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	fs.String("config", "", "config file path")
	seconds := fs.Int("seconds", 5, "recording length")
	fs.Parse(os.Args[2:])

	loader, cfg := loadConfig(fs)
	defer loader.Close()
	log := setupLogging(cfg)
	defer log.Close()

	wavPath := filepath.Join(os.TempDir(), "voiced_test.wav")
	defer os.Remove(wavPath)

	recorder := record.New(record.Config{
		SampleRate:  cfg.Audio.SampleRate,
		DeviceIndex: cfg.Audio.DeviceIndex,
	}, log)
	fmt.Printf("Recording %d seconds, speak now ...\n", *seconds)
	if err := recorder.Start(wavPath); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	time.Sleep(time.Duration(*seconds) * time.Second)
	if err := recorder.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}

	client := asr.New(asr.Config{
		Endpoint:   cfg.ASR.Endpoint,
		Model:      cfg.ASR.Model,
		Language:   cfg.ASR.Language,
		TextPath:   cfg.ASR.TextPath,
		Timeout:    time.Duration(cfg.ASR.TimeoutSec) * time.Second,
		MaxRetries: 1,
	}, nil, clock.System(), log)

	fmt.Printf("Uploading to %s ...\n", cfg.ASR.Endpoint)
	start := time.Now()
	text, err := client.Transcribe(context.Background(), wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK in %v: %q\n", time.Since(start).Round(time.Millisecond), strings.TrimSpace(text))
}

func cmdHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	fs.String("config", "", "config file path")
	limit := fs.Int("n", 20, "number of sessions to show")
	fs.Parse(os.Args[2:])

	loader, cfg := loadConfig(fs)
	defer loader.Close()

	if !cfg.Storage.Enabled {
		fmt.Println("Session history is disabled. Set storage.enabled = true to record sessions.")
		return
	}
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	records, err := st.List(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("No sessions recorded yet.")
		return
	}

	fmt.Printf("%-20s %-10s %-8s %-8s %6s\n", "STARTED", "OUTCOME", "ACTIVE", "PAUSED", "CHARS")
	for _, r := range records {
		paused := r.ManualPause + r.TimeoutPause + r.AutoPause
		fmt.Printf("%-20s %-10s %-8s %-8s %6d\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Outcome,
			r.Active.Round(time.Second),
			paused.Round(time.Second),
			r.Chars)
	}

	sum, err := st.Summarize()
	if err == nil {
		fmt.Printf("\n%d sessions total, %d pasted, %v dictated, %d characters\n",
			sum.Sessions, sum.Pasted, sum.TotalActive.Round(time.Second), sum.TotalChars)
	}
}

func cmdConfig() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: voiced config <init|show|path>")
		os.Exit(1)
	}
	action := os.Args[2]

	fs := flag.NewFlagSet("config", flag.ExitOnError)
	fs.String("config", "", "config file path")
	format := fs.String("format", "toml", "output format for show: toml, json, or yaml")
	fs.Parse(os.Args[3:])

	path := fs.Lookup("config").Value.String()
	if path == "" {
		path = config.DefaultPath()
	}

	switch action {
	case "init":
		if err := config.WriteDefault(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default config to %s\n", path)
	case "show":
		loader := config.NewLoader(path)
		cfg, err := loader.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
			os.Exit(1)
		}
		loader.Close()
		out, err := config.Export(cfg, *format)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
	case "path":
		fmt.Println(path)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		os.Exit(1)
	}
}
