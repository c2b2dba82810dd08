package marketplace

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPolicySplit(t *testing.T) {
	policy := DefaultPolicy()

	fee, seller := policy.Split(decimal.RequireFromString("100"))
	assert.True(t, fee.Equal(decimal.RequireFromString("5")))
	assert.True(t, seller.Equal(decimal.RequireFromString("95")))

	fee, seller = policy.Split(decimal.RequireFromString("10.01"))
	assert.True(t, fee.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, seller.Equal(decimal.RequireFromString("9.51")))
}

func TestPolicyExtendBoost(t *testing.T) {
	policy := DefaultPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(policy.BoostDuration), policy.ExtendBoost(nil, now))

	expired := now.Add(-time.Hour)
	assert.Equal(t, now.Add(policy.BoostDuration), policy.ExtendBoost(&expired, now))

	running := now.Add(48 * time.Hour)
	assert.Equal(t, running.Add(policy.BoostDuration), policy.ExtendBoost(&running, now))
}
