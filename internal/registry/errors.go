package registry

import (
	"github.com/pkg/errors"
)

var (
	// ErrNoDecoder is returned by Open when no registered plugin handles the
	// requested type.
	ErrNoDecoder = errors.New("no decoder for type")

	// ErrOpenFailed is returned by Open when plugins claim the type but none
	// of them could create a decoder. The caller may retry later.
	ErrOpenFailed = errors.New("decoder open failed")

	errTooManyPlugins = errors.New("too many plugins for type")
	errDuplicate      = errors.New("plugin already registered")
)
