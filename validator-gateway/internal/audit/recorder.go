package audit

import (
	"context"
	"fmt"
	"log"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/signing"
)

// Recorder appends events to the store, then fans them out to the optional
// publisher and archiver. Only the store append is reported to the caller;
// downstream failures are logged.
type Recorder struct {
	store     Store
	signer    signing.Signer
	publisher Publisher
	archiver  Archiver
}

// NewRecorder builds a Recorder. publisher and archiver may be nil.
func NewRecorder(store Store, signer signing.Signer, publisher Publisher, archiver Archiver) *Recorder {
	return &Recorder{
		store:     store,
		signer:    signer,
		publisher: publisher,
		archiver:  archiver,
	}
}

// Store exposes the underlying store for read endpoints.
func (r *Recorder) Store() Store {
	return r.store
}

// Record seals and stores an event. When image is non-empty and an archiver is
// configured, the image is archived first and its key is attached as metadata.
func (r *Recorder) Record(ctx context.Context, eventType string, payload map[string]interface{}, image []byte) (*Event, error) {
	ev := &Event{
		EventType: eventType,
		Payload:   payload,
	}

	if r.archiver != nil && len(image) > 0 {
		key, err := r.archiver.ArchiveImage(ctx, image)
		if err != nil {
			log.Printf("[audit.recorder] archive image failed: %v", err)
		} else {
			ev.Metadata = map[string]interface{}{"imageKey": key}
		}
	}

	if err := r.store.AppendEvent(ctx, ev, r.signer); err != nil {
		return nil, fmt.Errorf("append %s event: %w", eventType, err)
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			log.Printf("[audit.recorder] publish event %s failed: %v", ev.ID, err)
		}
	}
	return ev, nil
}

// Close releases the publisher.
func (r *Recorder) Close() error {
	if r.publisher == nil {
		return nil
	}
	return r.publisher.Close()
}
