package realtime

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Emitter publishes row changes after a successful write. A failed publish
// is logged and swallowed: the write already happened, and subscribers
// recover missed events through their reconnect refetch.
type Emitter struct {
	broker Broker
	logger *zap.Logger
	now    func() time.Time
}

func NewEmitter(broker Broker, logger *zap.Logger) *Emitter {
	return &Emitter{
		broker: broker,
		logger: logger.Named("emitter"),
		now:    time.Now,
	}
}

// Emit publishes one change of row to the given table in every scope.
// A nil Emitter drops the event.
func (e *Emitter) Emit(ctx context.Context, op Op, table Table, rowID int64, row any, scopes ...Scope) {
	if e == nil {
		return
	}

	var payload json.RawMessage
	if row != nil {
		b, err := json.Marshal(row)
		if err != nil {
			e.logger.Error("encode change row", zap.String("table", string(table)), zap.Int64("row_id", rowID), zap.Error(err))
			return
		}
		payload = b
	}

	for _, scope := range scopes {
		ev := Event{
			Op:    op,
			Table: table,
			Scope: scope.String(),
			RowID: rowID,
			Row:   payload,
			At:    e.now().UTC(),
		}
		topic := Filter{Table: table, Scope: scope}.Topic()
		if err := e.broker.Publish(ctx, topic, ev); err != nil {
			e.logger.Warn("publish change event",
				zap.String("topic", topic),
				zap.String("op", string(op)),
				zap.Int64("row_id", rowID),
				zap.Error(err),
			)
		}
	}
}
