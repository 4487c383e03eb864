package harbor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityOrderingAscends(t *testing.T) {
	assert.Less(t, PriorityLowest, PriorityLow)
	assert.Less(t, PriorityLow, PriorityNormal)
	assert.Less(t, PriorityNormal, PriorityHigh)
	assert.Less(t, PriorityHigh, PriorityHighest)
	assert.Less(t, PriorityHighest, PriorityMonitor)
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "NORMAL", PriorityNormal.String())
	assert.Equal(t, "MONITOR", PriorityMonitor.String())
	assert.Equal(t, "UNKNOWN", Priority(200).String())
}
