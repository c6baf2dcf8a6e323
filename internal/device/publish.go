package device

import (
	"time"

	"go.uber.org/zap"

	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/hardware"
	"github.com/ambience-earth/ambience/internal/types"
)

// publishingLog forwards every successfully written entry to the event
// channel. A full channel drops the event; watering never waits on a
// storage backend.
type publishingLog struct {
	*eventlog.Store

	events   chan<- types.Event
	deviceID string
	bootID   string
	loc      *time.Location
	clock    hardware.Clock
	logger   *zap.SugaredLogger
	dropped  uint64
}

func (p *publishingLog) Append(e eventlog.Entry) (eventlog.Entry, error) {
	written, err := p.Store.Append(e)
	if written.Seq != 0 {
		p.publish(written)
	}
	return written, err
}

func (p *publishingLog) publish(e eventlog.Entry) {
	if p.events == nil {
		return
	}
	number := uint32(p.Store.Epoch())<<16 | uint32(e.Seq)
	ev := types.NewEvent(p.deviceID, p.bootID, number, e, p.loc, p.clock.Now())
	select {
	case p.events <- ev:
	default:
		p.dropped++
		p.logger.Warnw("event channel full, dropping event", "number", number, "dropped", p.dropped)
	}
}
