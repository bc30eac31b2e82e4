package listeners

import (
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LogListener writes every average it receives to the structured log
type LogListener struct {
	id     string
	logger *zap.Logger
}

// NewLogListener creates a log listener; id distinguishes listeners in the log output
func NewLogListener(id string) *LogListener {
	return &LogListener{
		id:     id,
		logger: logger.Get().With(logger.String("listener", id)),
	}
}

// OnAverage logs the received average
func (l *LogListener) OnAverage(name string, value decimal.Decimal) {
	l.logger.Info("Received average",
		logger.String("calculator", name),
		logger.Decimal("value", value),
	)
}
