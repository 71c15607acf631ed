package media

import "github.com/lanikai/alohaplay/internal/logging"

var log = logging.DefaultLogger.WithTag("media")
