package managers

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ambience-earth/ambience/internal/controllers/restserver"
	"github.com/ambience-earth/ambience/pkg/config"
)

func TestUnknownController(t *testing.T) {
	var wg sync.WaitGroup
	_, err := NewControllerManager(context.Background(), &wg,
		[]config.ControllerData{{Type: "wunderground"}}, restserver.Deps{}, zap.NewNop().Sugar())
	assert.ErrorContains(t, err, "unknown controller type")
}

func TestRESTControllerNeedsDevice(t *testing.T) {
	var wg sync.WaitGroup
	_, err := NewControllerManager(context.Background(), &wg,
		[]config.ControllerData{{Type: "rest"}}, restserver.Deps{}, zap.NewNop().Sugar())
	assert.Error(t, err)
}
