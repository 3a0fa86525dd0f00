package store

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heysubinoy/flagstore/pkg/flags"
)

func TestInstrumentedStorage(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := NewInstrumentedStorage(New(NewMemBackend(), Options{Prefix: testPrefix}), m)

	require.NoError(t, s.CreateFlag(ctx, betaFlag()))
	assert.True(t, flags.IsDuplicate(s.CreateFlag(ctx, betaFlag())))

	_, found, err := s.GetFlag(ctx, "beta", flags.Production)
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = s.GetFlag(ctx, "beta", flags.Staging)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.UpdateFlag(ctx, "nope", flags.Production, flags.Patch{UpdatedAt: 1})
	assert.True(t, flags.IsNotFound(err))

	_, err = s.ListFlags(ctx)
	require.NoError(t, err)
	require.NoError(t, s.DeleteFlag(ctx, "beta"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("create", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("get", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("update", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("list", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("delete", "ok")))
	assert.Equal(t, 5, testutil.CollectAndCount(m.Latency))
}
