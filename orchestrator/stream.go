package orchestrator

import (
	"context"

	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
)

const streamBuffer = 64

// StreamMessage is one item of a streamed run: a transition event, or the
// terminal result as the last message.
type StreamMessage struct {
	Event  *workflow.Event
	Result *Result
	Err    error
}

// Stream runs a consultation and yields events as they occur, followed by
// the terminal result. The channel is closed after the result. Events are
// dropped once ctx is done so an abandoned consumer never blocks the run.
func (o *Orchestrator) Stream(ctx context.Context, query string, history []types.Turn, mode Mode) (<-chan StreamMessage, error) {
	if _, err := o.Graph(orDefault(mode)); err != nil {
		return nil, err
	}
	out := make(chan StreamMessage, streamBuffer)
	sink := workflow.SinkFunc(func(_ context.Context, ev workflow.Event) error {
		select {
		case out <- StreamMessage{Event: &ev}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		defer close(out)
		res, err := o.run(ctx, query, history, mode, sink)
		msg := StreamMessage{Result: res, Err: err}
		if ctx.Err() == nil {
			out <- msg
			return
		}
		select {
		case out <- msg:
		default:
		}
	}()
	return out, nil
}

func orDefault(m Mode) Mode {
	if m == "" {
		return ModeStandard
	}
	return m
}
