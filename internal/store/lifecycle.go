package store

import (
	"context"
	"errors"
	"fmt"
)

// Initialize runs once per process start. It creates the document with
// restart_count=1 when none exists, otherwise bumps restart_count and
// last_restart. With messages enabled, user_message is guaranteed to exist
// afterwards. A corrupt file is reported and left as is.
func (s *Store) Initialize(ctx context.Context) (*Document, error) {
	doc, b, err := s.modify(ctx, func(doc *Document, found bool) error {
		now := s.now()
		if !found {
			*doc = Document{
				FirstStarted: NewTimestamp(now),
				RestartCount: 1,
				LastRestart:  NewTimestamp(now),
			}
			s.log.Infof("no document at %s, creating it", s.path)
		} else {
			// a document without a counter counts as never started
			doc.RestartCount++
			doc.LastRestart = NewTimestamp(now)
		}
		if s.messages && doc.UserMessage == nil {
			empty := ""
			doc.UserMessage = &empty
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	s.export(ctx, b)
	s.log.Infof("restart_count=%d path=%s", doc.RestartCount, s.path)
	return doc, nil
}

// UpdateMessage stores msg as user_message and stamps message_updated.
// It only modifies an existing document: with none on disk it returns
// ErrNotFound and writes nothing.
func (s *Store) UpdateMessage(ctx context.Context, msg string) (*Document, error) {
	doc, b, err := s.modify(ctx, func(doc *Document, found bool) error {
		if !found {
			return ErrNotFound
		}
		doc.UserMessage = &msg
		doc.MessageUpdated = NewTimestamp(s.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	s.export(ctx, b)
	return doc, nil
}

// modify runs one read-modify-write cycle under the lock and returns the
// written bytes. Exporting them is left to the caller, after the lock is
// released, so a slow exporter never holds up other writers.
func (s *Store) modify(ctx context.Context, mutate func(doc *Document, found bool) error) (*Document, []byte, error) {
	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	doc, err := s.Read()
	found := true
	switch {
	case errors.Is(err, ErrNotFound):
		doc, found = &Document{}, false
	case err != nil:
		return nil, nil, err
	}
	if err := mutate(doc, found); err != nil {
		return nil, nil, err
	}
	b, err := s.writeFile(doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, b, nil
}
