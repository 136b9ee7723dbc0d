package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClose_RunsCleanupsInOrder(t *testing.T) {
	var order []string
	a := &App{
		dbCleanup:   func() { order = append(order, "db") },
		otelCleanup: func() { order = append(order, "otel") },
	}

	assert.NoError(t, a.Close())
	assert.Equal(t, []string{"db", "otel"}, order)
}

func TestClose_ZeroValue(t *testing.T) {
	assert.NoError(t, (&App{}).Close())
}
