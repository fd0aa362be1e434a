package persistence

import (
	"context"
	"testing"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/stretchr/testify/assert"
)

func TestNewReturnsErrorOnInvalidDSN(t *testing.T) {
	_, err := New(context.Background(), Config{DSN: "not a valid dsn ://"}, nil)
	assert.Error(t, err)
}

func TestPrimaryPatternTypeReturnsEmptyWithoutPrimaryPattern(t *testing.T) {
	c := candidate.New("005930", "Samsung", candidate.KOSPI)
	assert.Equal(t, candidate.PatternType(""), primaryPatternType(c))
}

func TestPrimaryPatternTypeReturnsDetectedType(t *testing.T) {
	c := candidate.New("005930", "Samsung", candidate.KOSPI)
	c.SetPatterns([]candidate.PatternInfo{{Type: candidate.Hammer, Strength: 80, Confidence: 0.7}})
	assert.Equal(t, candidate.Hammer, primaryPatternType(c))
}
