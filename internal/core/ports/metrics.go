package ports

import "time"

type RoundMetrics interface {
	RoundCompleted(outcome string, elapsed time.Duration)
	RoundStep(step string)
	ForfeitsSigned(count int)
}
