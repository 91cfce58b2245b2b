package stream

import (
	"context"
	"time"
)

// awaitPollInterval is the fallback poll interval used while awaiting.
const awaitPollInterval = 50 * time.Millisecond

// AwaitStatus waits for the status event that ends a run recorded in fs.
// Events already in the store are checked first, so a run that finished
// before the call returns immediately.
//
// The function returns the status when found, or ctx.Err() if the context
// is canceled first.
func AwaitStatus(ctx context.Context, fs *FileStore) (*StatusEvent, error) {
	eventCh, err := fs.Subscribe(ctx, 1, awaitPollInterval)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-eventCh:
			if !ok {
				// Channel closed (context canceled)
				return nil, ctx.Err()
			}

			if event.Type == MessageTypeStatus {
				return event.StatusData()
			}
		}
	}
}

// AwaitAck waits for the acknowledgment of the command with the given ID.
func AwaitAck(ctx context.Context, fs *FileStore, commandID string) (*Ack, error) {
	eventCh, err := fs.Subscribe(ctx, 1, awaitPollInterval)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-eventCh:
			if !ok {
				return nil, ctx.Err()
			}

			if event.Type == MessageTypeAck {
				ack, err := event.AckData()
				if err == nil && ack.CommandID == commandID {
					return ack, nil
				}
			}
		}
	}
}
