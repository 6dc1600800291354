package sink

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-duplex/core/sink"

var logger = otelslog.NewLogger(scopeName)
