package eventloop

import (
	"fmt"
	"os"

	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/panjf2000/gnet/v2/pkg/logging"
)

// gnetLogger routes gnet's internal logging through the server logger.
type gnetLogger struct{}

var _ logging.Logger = gnetLogger{}

func (gnetLogger) Debugf(format string, args ...any) {
	logger.Debug("gnet: "+format, args...)
}

func (gnetLogger) Infof(format string, args ...any) {
	// gnet reports engine start and stop at info; keep them out of INFO output
	logger.Debug("gnet: "+format, args...)
}

func (gnetLogger) Warnf(format string, args ...any) {
	logger.Warn("gnet: "+format, args...)
}

func (gnetLogger) Errorf(format string, args ...any) {
	logger.Error("gnet: "+format, args...)
}

func (gnetLogger) Fatalf(format string, args ...any) {
	logger.Error("gnet: "+format, args...)
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
