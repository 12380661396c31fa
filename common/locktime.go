package common

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/blockchain"
)

const (
	SEQUENCE_LOCKTIME_MASK        = 0x0000ffff
	SEQUENCE_LOCKTIME_GRANULARITY = 9
	SECONDS_MOD                   = 1 << SEQUENCE_LOCKTIME_GRANULARITY
	SECONDS_MAX                   = SEQUENCE_LOCKTIME_MASK << SEQUENCE_LOCKTIME_GRANULARITY

	SECONDS_PER_BLOCK = 10 * 60 // 10 minutes
)

// RelativeLocktimeType represents a BIP68 relative locktime
// it is passed as argument to CheckSequenceVerify opcode
type RelativeLocktimeType uint

const (
	LocktimeTypeSecond RelativeLocktimeType = iota
	LocktimeTypeBlock
)

// RelativeLocktime represents a BIP68 relative timelock value
type RelativeLocktime struct {
	Type  RelativeLocktimeType
	Value uint32
}

// NewRelativeLocktime follows the server convention: values below 512 are
// block counts, anything else is seconds.
func NewRelativeLocktime(value int64) (RelativeLocktime, error) {
	if value <= 0 {
		return RelativeLocktime{}, fmt.Errorf("invalid relative locktime %d", value)
	}
	if value < SECONDS_MOD {
		return RelativeLocktime{Type: LocktimeTypeBlock, Value: uint32(value)}, nil
	}
	if value > SECONDS_MAX {
		return RelativeLocktime{}, fmt.Errorf("seconds too large, max is %d", SECONDS_MAX)
	}
	return RelativeLocktime{Type: LocktimeTypeSecond, Value: uint32(value)}, nil
}

func (l RelativeLocktime) Seconds() int64 {
	if l.Type == LocktimeTypeBlock {
		return int64(l.Value) * SECONDS_PER_BLOCK
	}
	return int64(l.Value)
}

// Duration approximates block based locktimes with SECONDS_PER_BLOCK.
func (l RelativeLocktime) Duration() time.Duration {
	return time.Duration(l.Seconds()) * time.Second
}

func (l RelativeLocktime) Compare(other RelativeLocktime) int {
	val := l.Seconds()
	otherVal := other.Seconds()

	if val == otherVal {
		return 0
	}
	if val < otherVal {
		return -1
	}
	return 1
}

func (l RelativeLocktime) String() string {
	if l.Type == LocktimeTypeBlock {
		return fmt.Sprintf("%d blocks", l.Value)
	}
	return fmt.Sprintf("%d seconds", l.Value)
}

// BIP68Sequence returns the nSequence encoding of the locktime
func BIP68Sequence(locktime RelativeLocktime) (uint32, error) {
	isSeconds := locktime.Type == LocktimeTypeSecond
	value := locktime.Value
	if isSeconds {
		if value > SECONDS_MAX {
			return 0, fmt.Errorf("seconds too large, max is %d", SECONDS_MAX)
		}
		if value%SECONDS_MOD != 0 {
			return 0, fmt.Errorf("seconds must be a multiple of %d", SECONDS_MOD)
		}
	}

	return blockchain.LockTimeToSequence(isSeconds, value), nil
}
