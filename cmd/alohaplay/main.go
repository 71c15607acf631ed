package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/alohaplay/internal/config"
	"github.com/lanikai/alohaplay/internal/logging"
)

var log = logging.DefaultLogger.WithTag("alohaplay")

// Populated via -ldflags="-X main.GitRevisionId=...".
var GitRevisionId string

type options struct {
	configFile string
	logLevel   string

	audioSink string
	videoSink string
	noAudio   bool
	noVideo   bool
	realtime  bool
	start     time.Duration
	gapless   bool

	listen     string
	mqttBroker string

	version bool
}

func (o *options) bind(fs *flag.FlagSet) {
	fs.StringVarP(&o.configFile, "config", "c", "", "YAML configuration file")
	fs.StringVar(&o.logLevel, "loglevel", "", "Log directives")
	fs.StringVar(&o.audioSink, "audio-sink", "", "Write decoded audio to FILE")
	fs.StringVar(&o.videoSink, "video-sink", "", "Write decoded video to FILE")
	fs.BoolVar(&o.noAudio, "no-audio", false, "Do not attach an audio port")
	fs.BoolVar(&o.noVideo, "no-video", false, "Do not attach a video port")
	fs.BoolVarP(&o.realtime, "realtime", "r", false, "Feed packets at their presentation time")
	fs.DurationVarP(&o.start, "start", "s", 0, "Start each file at this offset")
	fs.BoolVar(&o.gapless, "gapless", false, "Switch between files without a discontinuity")
	fs.StringVarP(&o.listen, "listen", "l", "", "Websocket control address")
	fs.StringVarP(&o.mqttBroker, "mqtt-broker", "m", "", "MQTT broker URI")
	fs.BoolVarP(&o.version, "version", "v", false, "Print version information and exit")
}

// load reads the configuration file, if any, and applies the flags that
// were set on top of it.
func (o *options) load(fs *flag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		var err error
		if cfg, err = config.Load(o.configFile); err != nil {
			return nil, err
		}
	}

	if fs.Changed("loglevel") {
		cfg.LogLevel = o.logLevel
	}
	if fs.Changed("audio-sink") {
		cfg.Output.Audio.Sink = o.audioSink
	}
	if fs.Changed("video-sink") {
		cfg.Output.Video.Sink = o.videoSink
	}
	if o.noAudio {
		cfg.Output.Audio.Enabled = false
	}
	if o.noVideo {
		cfg.Output.Video.Enabled = false
	}
	if fs.Changed("gapless") {
		cfg.Engine.Gapless = o.gapless
	}
	if fs.Changed("listen") {
		cfg.Control.Listen = o.listen
	}
	if fs.Changed("mqtt-broker") {
		cfg.MQTT.Broker = o.mqttBroker
	}
	return cfg, config.Validate(cfg)
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "alohaplay [OPTION]... FILE...",
		Short:         "Revocable-ticket media player core",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.version {
				version(cmd.OutOrStdout())
				return nil
			}
			cfg, err := opts.load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := logging.Configure(cfg.LogLevel); err != nil {
				return err
			}
			if len(args) == 0 && cfg.Control.Listen == "" {
				help(cmd, args)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, args, playOptions{realtime: opts.realtime, start: opts.start})
		},
	}
	opts.bind(cmd.Flags())
	cmd.SetHelpFunc(help)
	cmd.AddCommand(newDecodersCommand())
	return cmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
