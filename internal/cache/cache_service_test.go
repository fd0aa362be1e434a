package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Redis is never reachable in this suite; NewService's initial ping fails
// and the service starts degraded rather than erroring.
func unreachableService() *Service {
	return NewService("127.0.0.1:1", "", 0, nil)
}

func TestNewServiceStartsDegradedWithoutRedis(t *testing.T) {
	s := unreachableService()
	assert.False(t, s.IsHealthy())
}

func TestGetJSONReturnsErrorWhenCircuitOpen(t *testing.T) {
	s := unreachableService()
	var dest map[string]string
	err := s.GetJSON(context.Background(), "some-key", &dest)
	assert.Error(t, err)
}

func TestSetJSONReturnsErrorWhenCircuitOpen(t *testing.T) {
	s := unreachableService()
	err := s.SetJSON(context.Background(), "some-key", map[string]string{"a": "b"}, 0)
	assert.Error(t, err)
}

func TestClientReturnsUnderlyingClient(t *testing.T) {
	s := unreachableService()
	assert.NotNil(t, s.Client())
}

func TestCloseIsSafeOnDegradedService(t *testing.T) {
	s := unreachableService()
	assert.NoError(t, s.Close())
}
