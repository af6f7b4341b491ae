package bus

import (
	"fmt"
	"strings"

	"github.com/irbench/ir-bench/internal/config"
	"github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/pkg/logger"
)

// NewBus creates a new Bus instance based on the configuration.
// When an event log path is configured, the bus is wrapped so that
// every published event is also appended to the JSONL log.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	inner, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.EventLog == "" {
		return inner, nil
	}

	eventLogger, err := NewEventLogger(cfg.EventLog, true)
	if err != nil {
		inner.Close()
		return nil, errors.BusError("failed to open event log", err)
	}

	return NewLoggedBus(inner, eventLogger, log), nil
}

func newBackend(cfg config.BusConfig) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemoryBus(), nil

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		return NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: "ir-bench",
			ClientID:      "ir-bench-bus",
		})

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}
}
