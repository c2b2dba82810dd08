package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRunOrder(t *testing.T) {
	overdue := &stubJob{name: "loan-overdue"}
	reconcile := &stubJob{name: "ledger-reconcile"}
	registry, err := NewRegistry(overdue, reconcile)
	require.NoError(t, err)

	assert.Equal(t, []string{"loan-overdue", "ledger-reconcile"}, registry.Names())
	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, overdue, jobs[0])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "callers get a copy")
}

func TestRegistryRejectsBadJobs(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "loan-overdue"}, &stubJob{name: "loan-overdue"})
	assert.ErrorContains(t, err, "registered twice")

	registry, err := NewRegistry()
	require.NoError(t, err)
	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(&stubJob{name: "  "}))
	assert.Empty(t, registry.Jobs())
}
