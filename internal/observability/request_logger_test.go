package observability

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerRecordsRoutePattern(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	metrics := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), metrics))
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(ActorLocal, "agent-3")
		return c.Next()
	})
	app.Get("/tickets/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		c.Status(fiber.StatusBadGateway)
		return errors.New("upstream")
	})

	for _, id := range []string{"a", "b"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/tickets/"+id, nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	}
	require.EqualValues(t, 2, metrics.Snapshot().Requests["/tickets/:id|GET|204"])

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 2)
	require.Equal(t, "agent-3", entries[0].ContextMap()["actor"])
	require.Equal(t, "/tickets/a", entries[0].ContextMap()["path"])

	_, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
}
