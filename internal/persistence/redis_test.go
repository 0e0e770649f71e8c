package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedisKeyUsesPrefix(t *testing.T) {
	r := &Redis{prefix: "ticket-sla:"}
	require.Equal(t, "ticket-sla:statuses:v1", r.Key("statuses:v1"))

	var missing *Redis
	require.Equal(t, "statuses:v1", missing.Key("statuses:v1"))
	require.Error(t, missing.Ping(context.Background()))
}
