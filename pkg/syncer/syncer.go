// Package syncer applies client change sets to the graph and reads
// snapshots back out of it.
//
// A sync request carries, per entity type, buckets of added, updated and
// removed records. [Syncer.Sync] resolves placeholder identifiers across the
// whole request, validates its shape and applies every bucket inside one
// write transaction, so a request is either applied completely or not at all.
//
// Entity types are applied in two phases: tasks and resources first, then
// dependencies and assignments, whose endpoints may be tasks or resources
// added by the same request. Within a phase the drivers run concurrently
// when the store's transaction accepts concurrent statements.
package syncer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/models"
	"github.com/surrealdb/ganttsync/pkg/phantom"
)

// phases lists the entity types applied together, in order.
var phases = [][]models.EntityType{
	{models.EntityTask, models.EntityResource},
	{models.EntityDependency, models.EntityAssignment},
}

// Syncer runs sync, load and import operations against a graph store.
type Syncer struct {
	store      graph.Store
	newID      func() string
	concurrent bool
	log        zerolog.Logger

	resolver *phantom.Resolver
	drivers  map[models.EntityType]Driver
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithIDGenerator sets the function producing new identifiers, both for
// resolved placeholders and for records added without an id.
func WithIDGenerator(fn func() string) Option {
	return func(s *Syncer) {
		s.newID = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Syncer) {
		s.log = l
	}
}

// WithConcurrency enables or disables running the drivers of a phase
// concurrently. It is enabled by default and only takes effect on stores
// whose transactions implement graph.ConcurrentTx.
func WithConcurrency(enabled bool) Option {
	return func(s *Syncer) {
		s.concurrent = enabled
	}
}

// New creates a Syncer over store.
func New(store graph.Store, opts ...Option) *Syncer {
	s := &Syncer{
		store:      store,
		newID:      uuid.NewString,
		concurrent: true,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.resolver = phantom.New(phantom.WithGenerator(s.newID))
	s.drivers = map[models.EntityType]Driver{}
	for _, d := range []Driver{
		TaskDriver{newID: s.newID},
		ResourceDriver{newID: s.newID},
		AssignmentDriver{newID: s.newID},
		DependencyDriver{newID: s.newID},
	} {
		s.drivers[d.Entity()] = d
	}
	return s
}

// Store returns the underlying graph store.
func (s *Syncer) Store() graph.Store {
	return s.store
}

// Sync applies a raw change request and returns the response to send back.
//
// On success the response carries, for every entity type whose added bucket
// produced rows, the persisted rows including the echoed placeholder markers.
// On failure nothing is persisted, the response has Success false and its
// Message holds the error text, and the error is returned as well.
func (s *Syncer) Sync(ctx context.Context, payload models.Record) (models.SyncResponse, error) {
	var resp models.SyncResponse
	if payload != nil {
		resp.RequestID = payload[models.KeyRequestID]
	}

	resolved, mapping, err := s.resolver.Resolve(payload)
	if err != nil {
		return fail(resp, &Error{Kind: KindValidation, Op: "resolve", Err: err})
	}
	req, err := ParseRequest(resolved)
	if err != nil {
		return fail(resp, err)
	}

	results := map[models.EntityType][]models.Record{}
	err = s.store.Update(ctx, func(ctx context.Context, tx graph.Tx) error {
		tracked := graph.Track(tx)
		for _, phase := range phases {
			if err := s.runPhase(ctx, tracked, req, phase, results); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fail(resp, storeError("sync", err))
	}

	for _, entity := range models.EntityTypes {
		if rows := results[entity]; len(rows) > 0 {
			resp.SetRows(entity, rows)
		}
	}
	resp.Success = true

	s.log.Debug().
		Interface("requestId", resp.RequestID).
		Int("placeholders", len(mapping)).
		Dict("changes", changeCounts(req)).
		Msg("sync applied")
	return resp, nil
}

func (s *Syncer) runPhase(ctx context.Context, tx graph.Tx, req *models.SyncRequest, phase []models.EntityType, results map[models.EntityType][]models.Record) error {
	var mu sync.Mutex
	run := func(ctx context.Context, entity models.EntityType) error {
		cs := req.Changes[entity]
		if cs.IsZero() {
			return nil
		}
		rows, err := apply(ctx, s.drivers[entity], tx, cs)
		if err != nil {
			return err
		}
		mu.Lock()
		results[entity] = rows
		mu.Unlock()
		return nil
	}

	if !s.concurrent || !graph.IsConcurrent(tx) {
		for _, entity := range phase {
			if err := run(ctx, entity); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entity := range phase {
		g.Go(func() error {
			return run(gctx, entity)
		})
	}
	return g.Wait()
}

func fail(resp models.SyncResponse, err error) (models.SyncResponse, error) {
	resp.Success = false
	resp.Message = err.Error()
	return resp, err
}

func changeCounts(req *models.SyncRequest) *zerolog.Event {
	d := zerolog.Dict()
	for entity, cs := range req.Changes {
		d.Dict(string(entity), zerolog.Dict().
			Int(models.BucketAdded, len(cs.Added)).
			Int(models.BucketUpdated, len(cs.Updated)).
			Int(models.BucketRemoved, len(cs.Removed)))
	}
	return d
}
