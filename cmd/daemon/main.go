package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/devgianlu/go-vgmplay/flac"
	"github.com/devgianlu/go-vgmplay/metadata"
	"github.com/devgianlu/go-vgmplay/mp3"
	"github.com/devgianlu/go-vgmplay/mpris"
	"github.com/devgianlu/go-vgmplay/output"
	"github.com/devgianlu/go-vgmplay/player"
	"github.com/devgianlu/go-vgmplay/tracks"
	"github.com/devgianlu/go-vgmplay/vorbis"
	"github.com/devgianlu/go-vgmplay/wav"
	"github.com/gofrs/flock"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var formats = player.Formats{
	".wav":  wav.Open,
	".mp3":  mp3.Open,
	".flac": flac.Open,
	".ogg":  vorbis.Open,
}

type App struct {
	cfg *Config
	log vgmplay.Logger

	player *player.Player
	list   *tracks.List
	meta   *metadata.PlayerMetadata

	server *ApiServer
	mpris  mpris.Server
}

func NewApp(cfg *Config) (app *App, err error) {
	app = &App{cfg: cfg, log: &LogrusAdapter{log.NewEntry(log.StandardLogger())}}

	app.player, err = player.NewPlayer(&player.Options{
		Log:  app.log,
		Open: formats.Open,
		NewOutput: output.Factory(&output.NewOutputOptions{
			Log:              app.log,
			Backend:          cfg.AudioBackend,
			Device:           cfg.AudioDevice,
			OutputPipe:       cfg.AudioOutputPipe,
			OutputPipeFormat: cfg.AudioOutputPipeFormat,
			PollInterval:     cfg.PollInterval,
		}),
		MaxFrames: cfg.MaxFrames,
	})
	if err != nil {
		return nil, fmt.Errorf("failed creating player: %w", err)
	}

	app.list = tracks.NewList(app.log, &tracks.DirSource{Dir: cfg.MusicDir, Supported: formats.Supported})
	if err := app.list.Reload(); err != nil {
		// the directory may show up later, it is listed again on request
		app.log.WithError(err).Warnf("failed listing music directory %s", cfg.MusicDir)
	} else {
		app.log.Infof("found %d tracks in %s", app.list.Len(), cfg.MusicDir)
	}

	app.list.SetShuffle(cfg.Shuffle)

	app.meta = metadata.NewPlayerMetadata(app.log, metadata.MetadataPipeConfig{
		Enabled:    cfg.MetadataPipe.Enabled,
		Path:       cfg.MetadataPipe.Path,
		Format:     cfg.MetadataPipe.Format,
		BufferSize: cfg.MetadataPipe.BufferSize,
	})
	if err := app.meta.Start(); err != nil {
		app.player.Close()
		return nil, fmt.Errorf("failed starting metadata pipe: %w", err)
	}

	if cfg.Server.Enabled {
		app.server, err = NewApiServer(cfg.Server.Address, cfg.Server.Port, cfg.Server.AllowOrigin, cfg.Server.CertFile, cfg.Server.KeyFile)
		if err != nil {
			app.meta.Stop()
			app.player.Close()
			return nil, fmt.Errorf("failed creating api server: %w", err)
		}
	} else {
		app.server, _ = NewStubApiServer()
	}

	if cfg.Mpris.Enabled {
		app.mpris, err = mpris.NewServer(app.log)
		if err != nil {
			app.server.Close()
			app.meta.Stop()
			app.player.Close()
			return nil, fmt.Errorf("failed creating mpris server: %w", err)
		}
	} else {
		app.mpris = mpris.DummyServer{}
	}

	return app, nil
}

// Run serves the api until ctx is done.
func (app *App) Run(ctx context.Context) error {
	appPlayer := newAppPlayer(app)

	if app.cfg.Autoplay {
		if err := appPlayer.playSelected(); err != nil {
			app.log.WithError(err).Warnf("failed starting autoplay")
		}
	}

	appPlayer.Run(ctx, app.server.Receive())
	return nil
}

// PlayOnce plays a single file and returns once it is over.
func (app *App) PlayOnce(ctx context.Context, path string) error {
	events := app.player.Receive()

	if err := app.player.Play(path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			app.player.Stop()
			return nil
		case ev := <-events:
			switch ev.Type {
			case player.EventTypePlay:
				app.log.Infof("playing %s (%d channels, %d Hz, %s)", filepath.Base(path),
					ev.Track.Channels, ev.Track.SampleRate, ev.Track.Duration().Round(time.Second))
			case player.EventTypeNotPlaying, player.EventTypeStop:
				return nil
			case player.EventTypeError:
				return ev.Err
			}
		}
	}
}

func (app *App) Close() {
	app.server.Close()
	_ = app.mpris.Close()
	app.player.Close()
	app.meta.Stop()
}

type Config struct {
	ConfigDir string `koanf:"config_dir"`
	Play      string `koanf:"play"`

	LogLevel              log.Level     `koanf:"log_level"`
	MusicDir              string        `koanf:"music_dir"`
	MaxFrames             int           `koanf:"max_frames"`
	AudioBackend          string        `koanf:"audio_backend"`
	AudioDevice           string        `koanf:"audio_device"`
	AudioOutputPipe       string        `koanf:"audio_output_pipe"`
	AudioOutputPipeFormat string        `koanf:"audio_output_pipe_format"`
	PollInterval          time.Duration `koanf:"poll_interval"`
	Autoplay              bool          `koanf:"autoplay"`
	Shuffle               bool          `koanf:"shuffle"`
	Server                struct {
		Enabled     bool   `koanf:"enabled"`
		Address     string `koanf:"address"`
		Port        int    `koanf:"port"`
		AllowOrigin string `koanf:"allow_origin"`
		CertFile    string `koanf:"cert_file"`
		KeyFile     string `koanf:"key_file"`
	} `koanf:"server"`
	MetadataPipe struct {
		Enabled    bool   `koanf:"enabled"`
		Path       string `koanf:"path"`
		Format     string `koanf:"format"`
		BufferSize int    `koanf:"buffer_size"`
	} `koanf:"metadata_pipe"`
	Mpris struct {
		Enabled bool `koanf:"enabled"`
	} `koanf:"mpris"`
}

func loadConfig(cfg *Config, args []string) error {
	f := flag.NewFlagSet("config", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}

	defaultConfigDir := "."
	if userConfigDir, err := os.UserConfigDir(); err == nil {
		defaultConfigDir = filepath.Join(userConfigDir, "go-vgmplay")
	}

	f.StringVar(&cfg.ConfigDir, "config_dir", defaultConfigDir, "the configuration directory")
	f.String("play", "", "play a single file and exit")
	f.String("music_dir", "", "the directory to list tracks from")
	f.String("audio_backend", "", "the audio backend: pulseaudio, oto, pipe or timer")
	if err := f.Parse(args); err != nil {
		return err
	}

	k := koanf.New(".")

	// load default configuration
	_ = k.Load(confmap.Provider(map[string]interface{}{
		"log_level":                log.InfoLevel,
		"music_dir":                "music",
		"max_frames":               player.DefaultMaxFrames,
		"audio_backend":            "pulseaudio",
		"audio_output_pipe_format": "s16le",
		"poll_interval":            output.DefaultPollInterval.String(),

		"server.address": "localhost",

		"metadata_pipe.format":      "text",
		"metadata_pipe.buffer_size": 64,
	}, "."), nil)

	// load file configuration (if available)
	var configPath string
	if _, err := os.Stat(filepath.Join(cfg.ConfigDir, "config.yaml")); os.IsNotExist(err) {
		configPath = filepath.Join(cfg.ConfigDir, "config.yml")
	} else {
		configPath = filepath.Join(cfg.ConfigDir, "config.yaml")
	}

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed reading configuration file: %w", err)
		}
	}

	// load command line configuration
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return fmt.Errorf("failed loading command line configuration: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("failed unmarshalling configuration: %w", err)
	}

	if cfg.MaxFrames <= 0 {
		return fmt.Errorf("invalid max_frames: %d", cfg.MaxFrames)
	}

	// relative music directories are relative to the configuration
	if !filepath.IsAbs(cfg.MusicDir) {
		cfg.MusicDir = filepath.Join(cfg.ConfigDir, cfg.MusicDir)
	}

	return nil
}

func main() {
	var cfg Config
	if err := loadConfig(&cfg, os.Args[1:]); err != nil {
		log.WithError(err).Fatal("failed loading configuration")
	}

	log.SetLevel(cfg.LogLevel)
	log.Infof("running %s", vgmplay.SystemInfoString())

	// one-shot playback does not take the lock
	if cfg.Play == "" {
		stateDir, err := appStateDir()
		if err != nil {
			log.WithError(err).Fatal("failed determining state directory")
		}

		lock := flock.New(filepath.Join(stateDir, "lockfile"))
		if locked, err := lock.TryLock(); err != nil {
			log.WithError(err).Fatal("failed to acquire lock")
		} else if !locked {
			log.Fatal("another instance of go-vgmplay is already running")
		}

		defer func() { _ = lock.Unlock() }()
	}

	app, err := NewApp(&cfg)
	if err != nil {
		log.WithError(err).Fatal("failed creating app")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Play != "" {
		err = app.PlayOnce(ctx, cfg.Play)
	} else {
		err = app.Run(ctx)
	}

	app.Close()

	if err != nil {
		log.WithError(err).Error("playback failed")
		os.Exit(1)
	}
}
