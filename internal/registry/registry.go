// Package registry resolves data types to decoder instances.
//
// Plugins declare the codec types they handle and a priority. A plugin's
// class is initialised lazily the first time one of its types is opened;
// plugins whose class fails to initialise are dropped from the catalog.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/buffer"
	"github.com/lanikai/alohaplay/internal/logging"
	"github.com/lanikai/alohaplay/internal/media"
)

var log = logging.DefaultLogger.WithTag("registry")

// MaxPluginsPerType bounds how many plugins may claim one codec type.
const MaxPluginsPerType = 10

// Number of distinct open failures remembered for LastFailure.
const failureCacheSize = 64

// An OpenFunc creates a decoder instance for type t writing to out.
type OpenFunc func(out media.Output, t buffer.Type) (media.Decoder, error)

// A Plugin describes a decoder implementation.
type Plugin struct {
	Name string

	// Codec types handled. Channel bits are ignored.
	Types []buffer.Type

	// Higher priorities are tried first.
	Priority int

	// Init initialises the plugin class and returns the instance factory.
	// It runs at most once per successful initialisation.
	Init func() (OpenFunc, error)
}

type node struct {
	plugin *Plugin
	open   OpenFunc
	refs   atomic.Int32
}

// Registry is the catalog of decoder plugins. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	nodes   map[string]*node
	catalog map[buffer.Type][]*node

	// Failed opens, keyed by codec type. Not safe for concurrent use on its
	// own; guarded by mu.
	failures *lru.Cache

	inits singleflight.Group
}

func New() *Registry {
	return &Registry{
		nodes:    make(map[string]*node),
		catalog:  make(map[buffer.Type][]*node),
		failures: lru.New(failureCacheSize),
	}
}

// Register adds p to the catalog.
func (r *Registry) Register(p *Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[p.Name]; ok {
		return errors.Wrap(errDuplicate, p.Name)
	}
	for _, t := range p.Types {
		if len(r.catalog[t.Codec()]) >= MaxPluginsPerType {
			return errors.Wrapf(errTooManyPlugins, "%s: %v", p.Name, t)
		}
	}

	n := &node{plugin: p}
	r.nodes[p.Name] = n
	for _, t := range p.Types {
		codec := t.Codec()
		list := append(r.catalog[codec], n)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].plugin.Priority > list[j].plugin.Priority
		})
		r.catalog[codec] = list
	}
	log.Debug("registered %s (priority %d) for %v", p.Name, p.Priority, p.Types)
	return nil
}

// Unregister drops a plugin from the catalog. Handles already open keep
// working; closing them no longer touches the plugin's usage count.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(name)
}

func (r *Registry) removeLocked(name string) {
	n, ok := r.nodes[name]
	if !ok {
		return
	}
	delete(r.nodes, name)
	for _, t := range n.plugin.Types {
		codec := t.Codec()
		list := r.catalog[codec]
		for i, m := range list {
			if m == n {
				list = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(r.catalog, codec)
		} else {
			r.catalog[codec] = list
		}
	}
}

// Available reports whether any plugin claims type t.
func (r *Registry) Available(t buffer.Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.catalog[t.Codec()]) > 0
}

// Plugins lists registered plugin names in sorted order.
func (r *Registry) Plugins() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refs returns the number of open handles created by the named plugin.
func (r *Registry) Refs(name string) int {
	r.mu.Lock()
	n, ok := r.nodes[name]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return int(n.refs.Load())
}

// LastFailure returns the most recent error opening type t, if remembered.
func (r *Registry) LastFailure(t buffer.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.failures.Get(t.Codec()); ok {
		return v.(error)
	}
	return nil
}

// Open creates a decoder for t, trying each plugin for its codec type in
// priority order. The error wraps ErrNoDecoder when no plugin claims the
// type, and ErrOpenFailed when every candidate failed.
func (r *Registry) Open(out media.Output, t buffer.Type) (*Handle, error) {
	codec := t.Codec()

	r.mu.Lock()
	candidates := append([]*node(nil), r.catalog[codec]...)
	r.mu.Unlock()

	var lastErr error
	for _, n := range candidates {
		open, err := r.initClass(n)
		if err != nil {
			lastErr = err
			continue
		}

		dec, err := open(out, t)
		if err != nil {
			log.Debug("%s: open %v: %v", n.plugin.Name, t, err)
			lastErr = err
			continue
		}

		n.refs.Add(1)
		r.mu.Lock()
		r.failures.Remove(codec)
		r.mu.Unlock()
		return &Handle{Decoder: dec, Plugin: n.plugin.Name, node: weak.Make(n)}, nil
	}

	err := errors.Wrapf(ErrNoDecoder, "%v", t)
	if lastErr != nil {
		err = errors.Wrapf(ErrOpenFailed, "%v: %v", t, lastErr)
	}
	r.mu.Lock()
	_, seen := r.failures.Get(codec)
	r.failures.Add(codec, err)
	r.mu.Unlock()
	switch {
	case lastErr == nil:
	case seen:
		log.Debug("%v", err)
	default:
		log.Warn("%v", err)
	}
	return nil, err
}

// initClass returns the node's factory, initialising the plugin class if
// needed. Concurrent callers share a single initialisation.
func (r *Registry) initClass(n *node) (OpenFunc, error) {
	r.mu.Lock()
	open := n.open
	r.mu.Unlock()
	if open != nil {
		return open, nil
	}

	v, err := r.inits.Do(n.plugin.Name, func() (interface{}, error) {
		r.mu.Lock()
		open := n.open
		r.mu.Unlock()
		if open != nil {
			return open, nil
		}

		open, err := n.plugin.Init()
		if err == nil && open == nil {
			err = errors.New("class returned no factory")
		}
		if err != nil {
			log.Error("%s: class init failed, removing plugin: %v", n.plugin.Name, err)
			r.mu.Lock()
			r.removeLocked(n.plugin.Name)
			r.mu.Unlock()
			return nil, errors.Wrap(err, n.plugin.Name)
		}

		r.mu.Lock()
		n.open = open
		r.mu.Unlock()
		return open, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(OpenFunc), nil
}

// A Handle is an open decoder instance owned by one loop.
type Handle struct {
	media.Decoder

	// Name of the plugin that created the decoder.
	Plugin string

	node   weak.Pointer[node]
	closed atomic.Bool
}

// Close disposes the decoder and drops the plugin's usage count. Closing a
// handle twice is a no-op.
func (h *Handle) Close() error {
	if h == nil || !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if n := h.node.Value(); n != nil {
		n.refs.Add(-1)
	}
	return h.Decoder.Close()
}
