// Package codecs holds the built-in decoder plugins.
package codecs

import (
	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/logging"
	"github.com/lanikai/alohaplay/internal/media"
	"github.com/lanikai/alohaplay/internal/registry"
)

var log = logging.DefaultLogger.WithTag("codecs")

// Plugins returns the built-in decoder plugins.
func Plugins() []*registry.Plugin {
	return []*registry.Plugin{
		{
			Name:     "pcmu",
			Types:    []buffer.Type{buffer.AudioMULaw},
			Priority: 1,
			Init:     factory(newPCMUDecoder),
		},
		{
			Name:     "lpcm",
			Types:    []buffer.Type{buffer.AudioLPCMBE, buffer.AudioLPCMLE},
			Priority: 1,
			Init:     factory(newLPCMDecoder),
		},
		{
			Name:     "h264",
			Types:    []buffer.Type{buffer.VideoH264},
			Priority: 1,
			Init:     factory(newH264Decoder),
		},
		{
			Name:     "textspu",
			Types:    []buffer.Type{buffer.SPUText},
			Priority: 1,
			Init:     factory(newTextDecoder),
		},
	}
}

// Register adds every built-in plugin to r.
func Register(r *registry.Registry) error {
	for _, p := range Plugins() {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

func factory(open func(out media.Output, t buffer.Type) media.Decoder) func() (registry.OpenFunc, error) {
	return func() (registry.OpenFunc, error) {
		return func(out media.Output, t buffer.Type) (media.Decoder, error) {
			return open(out, t), nil
		}, nil
	}
}

// emit hands f to the port currently attached for class. Frames are dropped
// when nothing is attached.
func emit(out media.Output, class buffer.Class, f *media.Frame) error {
	if out == nil {
		return nil
	}
	port := out.Port(class)
	if port == nil {
		return nil
	}
	return port.Write(f)
}
