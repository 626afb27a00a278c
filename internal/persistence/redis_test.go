package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/supportdesk/ticket-lifecycle/internal/config"
)

func TestNewRedisWithoutAddrIsDisabled(t *testing.T) {
	t.Parallel()

	r := NewRedis(config.RedisConfig{}, zap.NewNop())
	require.Nil(t, r)
	require.Error(t, r.Ping(context.Background()))
	r.Close()
}

func TestNewRedisPings(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	r := NewRedis(config.RedisConfig{Addr: srv.Addr()}, zap.NewNop())
	require.NotNil(t, r)
	defer r.Close()
	require.NoError(t, r.Ping(context.Background()))
}

func TestPostgresWithoutDSN(t *testing.T) {
	t.Parallel()

	pg, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, pg.PoolHandle())
	require.Error(t, pg.Ping(context.Background()))
	require.NoError(t, RunMigrations(context.Background(), nil, "migrations", zap.NewNop()))
	pg.Close()
}

func TestPoolConfigAppliesSettings(t *testing.T) {
	t.Parallel()

	cfg, err := poolConfig(config.PostgresConfig{
		DSN:             "postgres://u:p@localhost:5432/tickets",
		MaxConns:        7,
		MinConns:        1,
		ConnMaxIdleSec:  10,
		ConnMaxLifeSec:  60,
		SlowQuery:       time.Second,
		ApplicationName: "lifecycle-test",
	}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, int32(7), cfg.MaxConns)
	require.Equal(t, int32(1), cfg.MinConns)
	require.Equal(t, 10*time.Second, cfg.MaxConnIdleTime)
	require.Equal(t, time.Minute, cfg.MaxConnLifetime)
	require.Equal(t, "lifecycle-test", cfg.ConnConfig.RuntimeParams["application_name"])
	require.IsType(t, &slowQueryTracer{}, cfg.ConnConfig.Tracer)
}

func TestSlowQueryTracerLogsOverThreshold(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	tracer := &slowQueryTracer{threshold: 0, logger: zap.New(core)}

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})
	require.Equal(t, 1, logs.FilterMessage("slow query").Len())

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT x"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})
	require.Equal(t, 1, logs.FilterMessage("query failed").Len())
}
