package gcp

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/obraflow/internal/jobs"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// JobStore is the Firestore implementation of jobs.Store. Each write runs in a
// transaction that re-reads the status, so a concurrent activation can never
// overwrite a transition it did not observe.
type JobStore struct {
	client     *firestore.Client
	collection string
	machine    *jobs.Machine
}

var _ jobs.Store = (*JobStore)(nil)

func NewJobStore(client *firestore.Client, collection string, machine *jobs.Machine) *JobStore {
	return &JobStore{client: client, collection: collection, machine: machine}
}

// Collection returns the Firestore collection the store writes to.
func (s *JobStore) Collection() string { return s.collection }

func (s *JobStore) doc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *JobStore) Claim(ctx context.Context, id string, from, to jobs.Status, dst any) error {
	ref := s.doc(id)
	var decodeErr error
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := s.getExpecting(tx, ref, from)
		if err != nil {
			return err
		}
		decodeErr = snap.DataTo(dst)
		if from == to {
			return nil
		}
		if err := s.machine.Check(from, to); err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "startedAt", Value: firestore.ServerTimestamp},
		})
	})
	if err != nil {
		return err
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: %s: %v", jobs.ErrInvalidRecord, id, decodeErr)
	}
	return nil
}

func (s *JobStore) Advance(ctx context.Context, id string, from, to jobs.Status, fields jobs.Fields) error {
	if err := s.machine.Check(from, to); err != nil {
		return err
	}
	ref := s.doc(id)
	updates := buildUpdates(to, fields)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := s.getExpecting(tx, ref, from); err != nil {
			return err
		}
		return tx.Update(ref, updates)
	})
}

// Get reads a job without any precondition.
func (s *JobStore) Get(ctx context.Context, id string, dst any) error {
	snap, err := s.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
		}
		return fmt.Errorf("failed to read job %s: %w", id, err)
	}
	return snap.DataTo(dst)
}

func (s *JobStore) getExpecting(tx *firestore.Transaction, ref *firestore.DocumentRef, from jobs.Status) (*firestore.DocumentSnapshot, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, ref.ID)
		}
		return nil, fmt.Errorf("failed to read job %s: %w", ref.ID, err)
	}
	raw, err := snap.DataAt("status")
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no status", jobs.ErrStatusMismatch, ref.ID)
	}
	if current, _ := raw.(string); jobs.Status(current) != from {
		return nil, fmt.Errorf("%w: %s is %q, expected %q", jobs.ErrStatusMismatch, ref.ID, current, from)
	}
	return snap, nil
}

// buildUpdates orders field paths so the write is deterministic.
func buildUpdates(to jobs.Status, fields jobs.Fields) []firestore.Update {
	paths := make([]string, 0, len(fields))
	for path := range fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	updates := []firestore.Update{{Path: "status", Value: string(to)}}
	for _, path := range paths {
		updates = append(updates, firestore.Update{Path: path, Value: fields[path]})
	}
	if to.IsTerminal() {
		updates = append(updates, firestore.Update{Path: "processedAt", Value: firestore.ServerTimestamp})
	}
	return updates
}
