package graceful

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yieldvault/yield_service/pkg/logger"
)

type recordingCloser struct {
	order *[]string
	name  string
}

func (c recordingCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

func TestShutdownOrder(t *testing.T) {
	var order []string
	sm := NewShutdownManager(nil, logger.NewNop(), recordingCloser{&order, "redis"}, recordingCloser{&order, "db"})
	sm.Register(ShutdownFunc(func(time.Duration) error {
		order = append(order, "accrual-worker")
		return nil
	}))
	sm.Register(ShutdownFunc(func(time.Duration) error {
		order = append(order, "reconciler")
		return errors.New("still draining")
	}))

	sm.Shutdown()

	assert.Equal(t, []string{"accrual-worker", "reconciler", "redis", "db"}, order)
}
