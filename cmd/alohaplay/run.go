package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanikai/alohaplay/internal/codecs"
	"github.com/lanikai/alohaplay/internal/config"
	"github.com/lanikai/alohaplay/internal/control"
	"github.com/lanikai/alohaplay/internal/demux"
	"github.com/lanikai/alohaplay/internal/engine"
	"github.com/lanikai/alohaplay/internal/events"
	"github.com/lanikai/alohaplay/internal/media"
	"github.com/lanikai/alohaplay/internal/registry"
)

type playOptions struct {
	realtime bool
	start    time.Duration
}

// outputs holds the ports a run can render to, by name.
type outputs struct {
	ports   map[string]media.Port
	queues  []*media.QueuePort
	closers []io.Closer
}

func (o *outputs) add(name string, pc config.PortConfig) (*media.QueuePort, error) {
	var sink io.Writer
	if pc.Sink != "" {
		fs, err := media.NewFileSink(pc.Sink)
		if err != nil {
			return nil, err
		}
		o.closers = append(o.closers, fs)
		sink = fs
	}
	p := media.NewQueuePort(name, pc.Queue, pc.Pace, sink)
	o.ports[name] = p
	o.queues = append(o.queues, p)
	return p, nil
}

func (o *outputs) Close() {
	for _, p := range o.queues {
		p.Shutdown()
	}
	for _, c := range o.closers {
		if err := c.Close(); err != nil {
			log.Warn("%v", err)
		}
	}
}

func openOutputs(cfg *config.Config) (*outputs, engine.Config, error) {
	o := &outputs{ports: make(map[string]media.Port)}
	ec := engine.Config{Decoder: cfg.Decoder()}

	if cfg.Output.Audio.Enabled {
		p, err := o.add("speaker", cfg.Output.Audio)
		if err != nil {
			o.Close()
			return nil, ec, err
		}
		ec.AudioPort = p
		o.add("null-audio", config.PortConfig{Queue: cfg.Output.Audio.Queue})
	}
	if cfg.Output.Video.Enabled {
		p, err := o.add("display", cfg.Output.Video)
		if err != nil {
			o.Close()
			return nil, ec, err
		}
		ec.VideoPort = p
		ec.SPUPort, _ = o.add("subtitles", config.PortConfig{Queue: cfg.Output.Video.Queue})
		o.add("null-video", config.PortConfig{Queue: cfg.Output.Video.Queue})
	}
	return o, ec, nil
}

func run(ctx context.Context, cfg *config.Config, files []string, opts playOptions) error {
	out, ec, err := openOutputs(cfg)
	if err != nil {
		return err
	}
	defer out.Close()

	e, err := engine.NewWithContext(ctx, ec)
	if err != nil {
		return err
	}
	defer e.Close()

	if cfg.MQTT.Broker != "" {
		pub, err := events.DialMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix)
		if err != nil {
			return err
		}
		defer pub.Close()
		go pub.Run(ctx, e.Events().Subscribe(64))
	}

	if cfg.Control.Listen != "" {
		srv := control.NewServer(e, out.ports, cfg.Control.MaxConnections)
		srv.RewireTimeout = cfg.PortRewiringTimeout()
		go func() {
			if err := srv.Listen(cfg.Control.Listen); err != nil {
				log.Error("Control server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	for i, file := range files {
		if err := playFile(ctx, e, file, demux.Options{
			Start:    opts.start,
			Realtime: opts.realtime,
			Gapless:  cfg.Engine.Gapless && i > 0,
		}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("%s: %v", file, err)
		}
	}

	if len(files) == 0 {
		// Control-only mode.
		<-ctx.Done()
	}
	return nil
}

// playFile plays one file to its end.
func playFile(ctx context.Context, e *engine.Engine, file string, opts demux.Options) error {
	m, err := demux.OpenMP4(file)
	if err != nil {
		return err
	}
	defer m.Close()

	sub := e.Events().Subscribe(16)
	defer e.Events().Unsubscribe(sub)

	s, err := e.NewStream()
	if err != nil {
		return err
	}
	log.Info("Playing %s as stream %s", file, s.ID)

	playErr := make(chan error, 1)
	go func() { playErr <- m.Play(ctx, s, opts) }()

	finished := false
	for !finished {
		select {
		case ev, ok := <-sub:
			if !ok {
				finished = true
			} else if ev.Type == events.Finished && ev.Stream == s.ID {
				finished = true
			}
		case <-ctx.Done():
			finished = true
		}
	}
	err = <-playErr

	if !s.EverBound() {
		log.Warn("%s: no decoder could be opened for any of its streams", file)
	}
	log.Info("%s: %+v", file, s.Stats())

	if e.Speed() == media.SpeedPause {
		e.Resume()
	}
	if cerr := e.CloseStream(s.ID); cerr != nil {
		log.Warn("%v", cerr)
	}
	return err
}

func newDecodersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decoders",
		Short: "List the built-in decoders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := registry.New()
			if err := codecs.Register(r); err != nil {
				return err
			}
			for _, p := range codecs.Plugins() {
				types := make([]string, len(p.Types))
				for i, t := range p.Types {
					types[i] = t.String()
				}
				cmd.Printf("%-8s priority %d: %v\n", p.Name, p.Priority, types)
			}
			cmd.Printf("%d decoders registered\n", len(r.Plugins()))
			return nil
		},
	}
}
