// Command duckdebug is the terminal rubber-duck client. Press Enter to talk
// to the duck, type a question, or manage the indexed sources of the duckd
// backend.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/MrWong99/duckdebug/internal/backendapi"
	"github.com/MrWong99/duckdebug/internal/capture"
	"github.com/MrWong99/duckdebug/internal/config"
	"github.com/MrWong99/duckdebug/internal/interaction"
	"github.com/MrWong99/duckdebug/internal/observe"
	"github.com/MrWong99/duckdebug/internal/pipeline"
	"github.com/MrWong99/duckdebug/internal/playback"
	"github.com/MrWong99/duckdebug/internal/resilience"
	"github.com/MrWong99/duckdebug/pkg/audio"
	"github.com/MrWong99/duckdebug/pkg/audio/ffmpeg"
	"github.com/MrWong99/duckdebug/pkg/provider/vad"
	"github.com/MrWong99/duckdebug/pkg/provider/vad/energy"
)

// wavSampleRate is what the WAV recorder resamples to; speech models do not
// benefit from more.
const wavSampleRate = 16000

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file (optional)")
	envPath := flag.String("env", ".env", "optional dotenv file")
	backendURL := flag.String("backend", "", "duckd base URL, overrides client.backend_url")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "duckdebug: %v\n", err)
		return 1
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "duckdebug: %v\n", err)
		return 1
	}
	if *backendURL != "" {
		cfg.Client.BackendURL = *backendURL
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:       "duckdebug",
		DisablePrometheus: true,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()
	metrics := observe.DefaultMetrics()

	// ── Backend client ────────────────────────────────────────────────────────
	t := cfg.Client.Timeouts
	client, err := backendapi.New(cfg.Client.BackendURL,
		backendapi.WithTimeouts(backendapi.Timeouts{
			Transcribe: t.Transcribe,
			Retrieve:   t.Retrieve,
			Query:      t.Query,
			Synthesize: t.Synthesize,
			Fetch:      t.Fetch,
			Upload:     t.Upload,
		}),
		backendapi.WithCircuitBreaker(resilience.CircuitBreakerConfig{Name: "duckd"}),
	)
	if err != nil {
		slog.Error("failed to create backend client", "err", err)
		return 1
	}

	// ── Audio ─────────────────────────────────────────────────────────────────
	var micOpts []ffmpeg.MicOption
	if cfg.Client.FFmpegPath != "" {
		micOpts = append(micOpts, ffmpeg.WithFFmpegPath(cfg.Client.FFmpegPath))
	}
	if cfg.Client.MicInput != "" {
		micOpts = append(micOpts, ffmpeg.WithInput(cfg.Client.MicInput))
	}
	mic := ffmpeg.NewMic(micOpts...)

	recorders := ffmpeg.WebMRecorderFactory(cfg.Client.FFmpegPath)
	if cfg.Client.Recorder == config.RecorderWAV {
		recorders = audio.WAVRecorderFactory(wavSampleRate)
	}

	var playerOpts []ffmpeg.PlayerOption
	if cfg.Client.FFplayPath != "" {
		playerOpts = append(playerOpts, ffmpeg.WithFFplayPath(cfg.Client.FFplayPath))
	}
	player, err := ffmpeg.NewPlayer(playerOpts...)
	if err != nil {
		slog.Error("audio playback unavailable", "err", err)
		return 1
	}

	// ── Controllers ───────────────────────────────────────────────────────────
	session, err := capture.New(mic, recorders, energy.New(),
		capture.WithVADConfig(vad.Config{
			Epsilon:   cfg.Client.SilenceEpsilon,
			Threshold: cfg.Client.SilenceThreshold,
		}),
		capture.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("failed to create capture session", "err", err)
		return 1
	}

	// The playback indicator is forwarded once the interaction controller
	// exists.
	var (
		ctrlMu sync.Mutex
		ctrl   *interaction.Controller
	)
	speaker, err := playback.New(player,
		playback.WithMetrics(metrics),
		playback.WithOnChange(func(talking bool) {
			ctrlMu.Lock()
			c := ctrl
			ctrlMu.Unlock()
			if c != nil {
				c.TalkingChanged(talking)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create playback controller", "err", err)
		return 1
	}
	defer speaker.Close()

	orch, err := pipeline.New(client, speaker, pipeline.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to create pipeline", "err", err)
		return 1
	}

	c, err := interaction.New(session, orch, speaker)
	if err != nil {
		slog.Error("failed to create interaction controller", "err", err)
		return 1
	}
	ctrlMu.Lock()
	ctrl = c
	ctrlMu.Unlock()

	slog.Info("duckdebug ready", "backend", client.BaseURL(), "recorder", cfg.Client.Recorder)
	fmt.Println("Duck Debug. Press Enter to talk, /help for commands.")

	return loop(ctx, c, client, os.Stdin, os.Stdout)
}

// loop runs the controller and feeds it commands read from in until /quit,
// EOF or cancellation.
func loop(ctx context.Context, c *interaction.Controller, client *backendapi.Client, in io.Reader, out io.Writer) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var jobs sync.WaitGroup
	defer func() {
		cancel()
		jobs.Wait()
	}()
	printed := make(chan string)

	r := newRenderer(out)
	r.render(c.State())
	for {
		select {
		case <-ctx.Done():
			cancel()
			<-runDone
			return 0
		case err := <-runDone:
			if err != nil {
				slog.Error("interaction controller stopped", "err", err)
				return 1
			}
			return 0
		case s := <-c.Updates():
			r.render(s)
		case text := <-printed:
			fmt.Fprintln(out, text)
		case line, ok := <-lines:
			if !ok {
				cancel()
				<-runDone
				return 0
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			switch cmd.kind {
			case cmdToggle:
				c.Toggle()
			case cmdAsk:
				c.Ask(cmd.arg)
			case cmdTab:
				if err := c.SelectTab(interaction.Tab(cmd.arg)); err != nil {
					fmt.Fprintln(out, err)
				}
			case cmdUpload:
				jobs.Add(1)
				go func() {
					defer jobs.Done()
					c.Notify(upload(ctx, client, cmd.arg))
				}()
			case cmdRefresh:
				jobs.Add(1)
				go func() {
					defer jobs.Done()
					c.Notify(refresh(ctx, client))
				}()
			case cmdVoices:
				jobs.Add(1)
				go func() {
					defer jobs.Done()
					select {
					case printed <- voices(ctx, client):
					case <-ctx.Done():
					}
				}()
			case cmdState:
				r.dump(c.State())
			case cmdHelp:
				fmt.Fprintln(out, helpText)
			case cmdQuit:
				cancel()
				<-runDone
				return 0
			}
		}
	}
}

// upload sends the Python sources below dir and returns the bubble text.
func upload(ctx context.Context, client *backendapi.Client, dir string) string {
	files, err := backendapi.CollectSources(dir)
	if err != nil {
		slog.Warn("collect sources", "dir", dir, "err", err)
		return "❌ " + err.Error()
	}
	if len(files) == 0 {
		return "No Python files found in " + dir
	}
	msg, err := client.UploadSources(ctx, files)
	if err != nil {
		slog.Warn("upload sources", "dir", dir, "err", err)
		return "❌ Upload failed: " + userText(err)
	}
	return msg
}

func refresh(ctx context.Context, client *backendapi.Client) string {
	msg, err := client.Refresh(ctx)
	if err != nil {
		slog.Warn("refresh index", "err", err)
		return "❌ Refresh failed: " + userText(err)
	}
	return msg
}

func voices(ctx context.Context, client *backendapi.Client) string {
	list, err := client.Voices(ctx)
	if err != nil {
		slog.Warn("list voices", "err", err)
		return "❌ Could not list voices: " + userText(err)
	}
	return formatVoices(list)
}

func userText(err error) string {
	var se *backendapi.StatusError
	if errors.As(err, &se) {
		return se.UserMessage()
	}
	return err.Error()
}

// loadConfig reads path when it exists. The client runs fine without a
// config file, so a missing one yields defaults plus environment overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = &config.Config{}
	config.ApplyEnv(cfg, os.Getenv)
	cfg.ApplyDefaults()
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger keeps info lines off the terminal unless debugging; they would
// interleave with the duck's output.
func newLogger(level config.LogLevel) *slog.Logger {
	lvl := slog.LevelWarn
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogError:
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
