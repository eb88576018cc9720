// Package tx implements the Transactor: the single goroutine that owns all
// mutable database state and linearizes every write through one event
// channel, plus the background index-rebuild fan-out it kicks off once the
// in-memory overlay grows past a threshold.
package tx

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nainya/cliodb/internal/logger"
	"github.com/nainya/cliodb/internal/metrics"
	"github.com/nainya/cliodb/pkg/db"
	"github.com/nainya/cliodb/pkg/fact"
	"github.com/nainya/cliodb/pkg/index"
	"github.com/nainya/cliodb/pkg/kv"
	"github.com/nainya/cliodb/pkg/wal"
)

// Config tunes the transactor's thresholds; see SPEC_FULL.md's
// Configuration section for the defaults a CLI binds these to. Logger and
// Metrics are both optional: a nil value disables the corresponding
// instrumentation rather than panicking, so tests can use DefaultConfig()
// without standing up either.
type Config struct {
	CacheSize         int
	RebuildThreshold  int // mem index size that triggers a background rebuild
	ThrottleThreshold int // mem index size (during rebuild) that forces backpressure

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

func DefaultConfig() Config {
	return Config{CacheSize: 1024, RebuildThreshold: 100_000, ThrottleThreshold: 1_000_000}
}

type event interface{ isEvent() }

type txEvent struct {
	tx    fact.Tx
	reply chan fact.TxReport
}

func (txEvent) isEvent() {}

type rebuiltEvent struct {
	newDb    *db.Db
	err      error
	duration time.Duration
}

func (rebuiltEvent) isEvent() {}

type stopEvent struct{}

func (stopEvent) isEvent() {}

// checkpointEvent asks the transactor to re-persist its current metadata
// cell on its own goroutine; it backs the WAL checkpointer's periodic
// flush, which must never touch Transactor state directly from its own
// timer goroutine.
type checkpointEvent struct{ done chan error }

func (checkpointEvent) isEvent() {}

// Handle is the thread-safe front door to a running Transactor: anything
// that wants to submit a transaction goes through it rather than touching
// the transactor's state directly.
type Handle struct {
	events chan event
}

// Transact submits tx and blocks for the transactor's reply.
func (h *Handle) Transact(tx fact.Tx) fact.TxReport {
	reply := make(chan fact.TxReport, 1)
	h.events <- txEvent{tx: tx, reply: reply}
	return <-reply
}

// Close stops the transactor's event loop after any in-flight work drains.
func (h *Handle) Close() {
	h.events <- stopEvent{}
}

// Transactor owns (nextID, latestTx, lastIndexedTx, currentDB, catchupTxs,
// throttled) and processes one event at a time from its channel. Every
// other goroutine in the process only ever reaches mutable database state
// through the Handle it was given.
type Transactor struct {
	nextID        int64
	latestTx      int64
	lastIndexedTx int64
	currentDB     *db.Db

	store  kv.Store
	guard  *wal.MetadataGuard
	config Config

	events            chan event
	catchupTxs        []fact.RawTx // non-nil while a rebuild is in flight
	rebuilding        bool
	rebuildSnapshotTx int64 // t.latestTx as of the snapshot a rebuild in flight was taken from
	throttled         bool
}

// Start opens or creates a database at store, runs its event loop on a new
// goroutine, and returns a Handle for submitting transactions. walPath
// guards the metadata cell's persistence (see pkg/wal.MetadataGuard); pass
// "" to run without WAL protection (acceptable for the in-memory backend,
// which has nothing to recover across restarts anyway).
func Start(store kv.Store, walPath string, config Config) (*Handle, error) {
	t := &Transactor{
		store:  store,
		config: config,
		events: make(chan event, 16),
	}

	if walPath != "" {
		g, err := wal.OpenMetadataGuard(walPath, func() error {
			done := make(chan error, 1)
			t.events <- checkpointEvent{done: done}
			return <-done
		})
		if err != nil {
			return nil, fmt.Errorf("tx: opening metadata wal: %w", err)
		}
		t.guard = g
	}

	if err := t.load(); err != nil {
		return nil, err
	}

	go t.run()
	return &Handle{events: t.events}, nil
}

// load either recovers an existing database from store (replaying any tx
// log entries more recent than the last indexed one, and any metadata
// write the WAL guard recorded but the store never durably received) or
// bootstraps a brand new one.
func (t *Transactor) load() error {
	meta, err := t.store.GetMetadata()
	if err == kv.ErrNotFound {
		return t.bootstrap()
	}
	if err != nil {
		return err
	}

	if t.guard != nil {
		if recovered, rerr := t.guard.Recover(); rerr == nil && recovered != nil {
			var recoveredMeta fact.DbMetadata
			if derr := wal.DecodeMetadata(recovered, &recoveredMeta); derr == nil {
				if recoveredMeta.NextID > meta.NextID || recoveredMeta.LastIndexedTx > meta.LastIndexedTx {
					meta = &recoveredMeta
					if serr := t.store.SetMetadata(meta); serr != nil {
						return fmt.Errorf("tx: replaying recovered metadata: %w", serr)
					}
				}
			}
		}
	}

	current, err := dbFromMetadata(t.store, meta, t.config.CacheSize)
	if err != nil {
		return err
	}

	nextID := meta.NextID
	latestTx := meta.LastIndexedTx
	novelty, err := t.store.GetTxs(meta.LastIndexedTx)
	if err != nil {
		return err
	}
	for _, raw := range novelty {
		for _, r := range raw.Records {
			if int64(r.E) >= nextID {
				nextID = int64(r.E) + 1
			}
			current = current.AddRecord(r)
		}
		latestTx = raw.ID
	}

	t.nextID = nextID
	t.latestTx = latestTx
	t.lastIndexedTx = meta.LastIndexedTx
	t.currentDB = current
	return nil
}

func dbFromMetadata(store kv.Store, meta *fact.DbMetadata, cacheSize int) (*db.Db, error) {
	schema := fact.DeserializeSchema(meta.Schema)
	eav := indexFromRoot(store, fact.CompareEAVT, meta.EAVRoot, cacheSize)
	aev := indexFromRoot(store, fact.CompareAEVT, meta.AEVRoot, cacheSize)
	ave := indexFromRoot(store, fact.CompareAVET, meta.AVETRoot, cacheSize)
	vae := indexFromRoot(store, fact.CompareVAET, meta.VAETRoot, cacheSize)
	return db.New(store, schema, eav, aev, ave, vae), nil
}

func (t *Transactor) bootstrap() error {
	current, nextID, err := bootstrapDB(t.store, t.config.CacheSize)
	if err != nil {
		return err
	}
	t.currentDB = current
	t.nextID = nextID
	t.latestTx = 0
	t.lastIndexedTx = -1
	return t.persistMetadata()
}

// currentMetadata captures the current db's root pointers, schema and
// allocator state.
func (t *Transactor) currentMetadata() *fact.DbMetadata {
	return &fact.DbMetadata{
		NextID:        t.nextID,
		LastIndexedTx: t.lastIndexedTx,
		Schema:        t.currentDB.Schema().Serialize(),
		EAVRoot:       t.currentDB.EAV.DurableRoot(),
		AEVRoot:       t.currentDB.AEV.DurableRoot(),
		AVETRoot:      t.currentDB.AVE.DurableRoot(),
		VAETRoot:      t.currentDB.VAE.DurableRoot(),
	}
}

// persistMetadata serializes the current db's root pointers and allocator
// state, guards the write through the WAL (when enabled), and only then
// calls through to the store. This is the ordering SPEC_FULL.md's Open
// Question 1 resolves: the WAL entry is durable before the store's own
// metadata cell is touched, so recovery can always tell which one to
// trust after a crash.
func (t *Transactor) persistMetadata() error {
	meta := t.currentMetadata()

	if t.guard != nil {
		encoded, err := wal.EncodeMetadata(meta)
		if err != nil {
			return err
		}
		if err := t.guard.Guard(encoded); err != nil {
			return err
		}
	}

	return t.store.SetMetadata(meta)
}

func (t *Transactor) getID() int64 {
	id := t.nextID
	t.nextID++
	return id
}

// run is the event loop: exactly one event is handled at a time, so every
// mutation to t's fields below happens on this single goroutine.
func (t *Transactor) run() {
	for e := range t.events {
		switch ev := e.(type) {
		case txEvent:
			ev.reply <- t.processTx(ev.tx)
		case rebuiltEvent:
			t.handleRebuilt(ev)
		case checkpointEvent:
			ev.done <- t.store.SetMetadata(t.currentMetadata())
		case stopEvent:
			if t.guard != nil {
				t.guard.Close()
			}
			return
		}
	}
}

func (t *Transactor) processTx(req fact.Tx) fact.TxReport {
	start := time.Now()
	report := t.doProcessTx(req)
	if t.config.Metrics != nil {
		t.config.Metrics.RecordTx(report.Success, len(report.NewEntities), time.Since(start))
		t.config.Metrics.SetMemIndexSize(t.currentDB.MemIndexSize())
	}
	if t.config.Logger != nil && !report.Success {
		t.config.Logger.TxLogger().Error(report.FailureMessage).Msg("transaction failed")
	}
	return report
}

func (t *Transactor) doProcessTx(req fact.Tx) fact.TxReport {
	var newEntities []fact.Entity
	txID := t.getID()
	txEntity := fact.Entity(txID)

	raw := fact.RawTx{ID: txID}

	current := t.currentDB
	schema := current.Schema()
	schemaChanged := false

	identAttr, _ := schema.Idents.GetEntity(fact.IdentDbIdent)
	valueTypeAttr, _ := schema.Idents.GetEntity(fact.IdentValueType)

	// apply folds r into current and, when r itself is a db:ident or
	// db:valueType fact, grows schema so attributes declared mid-transaction
	// are resolvable by buildRecord for the remainder of this same
	// transaction (and by every later one, once WithSchema below publishes
	// the grown schema). schema is cloned on first growth so earlier Db
	// snapshots still held by readers keep seeing the old one.
	apply := func(dbIn *db.Db, r fact.Record) (*db.Db, error) {
		raw.Records = append(raw.Records, r)
		if !r.Retracted {
			switch r.A {
			case identAttr:
				if !schemaChanged {
					schema = schema.Clone()
					schemaChanged = true
				}
				schema.Idents.Add(r.V.Str, r.E)
			case valueTypeAttr:
				// db:valueType's own declared type is db:type:ident (see
				// bootstrap.go), so r.V names the type tag as an ident
				// (e.g. "db:type:long"), not a ref to its entity.
				if vt, ok := fact.IdentToValueType(r.V.Str); ok {
					if !schemaChanged {
						schema = schema.Clone()
						schemaChanged = true
					}
					schema.AddValueType(r.E, vt)
				}
			}
		}
		return dbIn.AddRecord(r), nil
	}

	tsRecord, err := buildRecord(schema, txEntity, fact.IdentTxTimestamp, fact.TimestampValue(time.Now().UTC()), txEntity)
	if err != nil {
		return failure(err)
	}
	current, _ = apply(current, tsRecord)

	for _, item := range req.Items {
		switch item.Kind {
		case fact.ItemAddition:
			r, err := buildRecord(schema, item.Entity, item.Attribute, item.Value, txEntity)
			if err != nil {
				return failure(err)
			}
			current, _ = apply(current, r)

		case fact.ItemRetraction:
			attr, ok := schema.Idents.GetEntity(item.Attribute)
			if !ok {
				return failure(fmt.Errorf("tx: unknown attribute %q", item.Attribute))
			}
			if !factExists(current, item.Entity, attr, item.Value) {
				return failure(fmt.Errorf("tx: cannot retract nonexistent fact (%s %s %s)",
					item.Entity, item.Attribute, item.Value.String()))
			}
			r := fact.Retraction(item.Entity, attr, item.Value, txEntity)
			current, _ = apply(current, r)

		case fact.ItemNewEntity:
			e := fact.Entity(t.getID())
			for attrName, v := range item.NewEntity {
				r, err := buildRecord(schema, e, attrName, v, txEntity)
				if err != nil {
					return failure(err)
				}
				current, _ = apply(current, r)
			}
			newEntities = append(newEntities, e)
		}
	}

	if schemaChanged {
		current = current.WithSchema(schema)
	}

	if err := t.store.AddTx(raw); err != nil {
		return failure(err)
	}
	t.latestTx = raw.ID
	if t.rebuilding {
		t.catchupTxs = append(t.catchupTxs, raw)
	}

	t.currentDB = current
	if err := t.persistMetadata(); err != nil {
		return failure(err)
	}

	memSize := t.currentDB.MemIndexSize()
	if memSize > t.config.RebuildThreshold {
		if t.rebuilding {
			if !t.throttled && memSize > t.config.ThrottleThreshold {
				t.throttled = true
				t.logThrottleChange(memSize)
			}
		} else {
			t.startRebuild()
		}
	}

	if t.throttled {
		time.Sleep(time.Second)
	}

	return fact.TxReport{Success: true, NewEntities: newEntities}
}

func failure(err error) fact.TxReport {
	return fact.TxReport{Success: false, FailureMessage: err.Error()}
}

// buildRecord resolves attrName to an attribute entity (creating schema
// bookkeeping is not this function's job — db:ident facts committed
// earlier in the same tx are already visible via schema, since each
// TxItem folds into current/schema sequentially) and type-checks v
// against the attribute's declared db:valueType, failing closed if the
// attribute has never been declared.
func buildRecord(schema *fact.Schema, e fact.Entity, attrName string, v fact.Value, txEntity fact.Entity) (fact.Record, error) {
	attr, ok := schema.Idents.GetEntity(attrName)
	if !ok {
		return fact.Record{}, fmt.Errorf("tx: unknown attribute %q (missing db:ident)", attrName)
	}
	declared, ok := schema.ValueTypeOf(attr)
	if !ok {
		return fact.Record{}, fmt.Errorf("tx: attribute %q has no db:valueType", attrName)
	}
	if declared != v.Type {
		return fact.Record{}, fmt.Errorf("tx: value type mismatch for %q: expected %s, got %s", attrName, declared, v.Type)
	}
	return fact.Addition(e, attr, v, txEntity), nil
}

// factExists checks whether (e, a, v) currently holds by scanning its
// narrowest index (EAVT) and cancelling retractions, mirroring the read
// path in pkg/db so retraction validation sees exactly what a query would.
func factExists(current *db.Db, e fact.Entity, a fact.Entity, v fact.Value) bool {
	start := fact.Addition(e, a, fact.Value{}, fact.MinEntity)
	it, err := current.EAV.RangeFrom(start)
	if err != nil {
		return false
	}
	var candidates []fact.Record
	for {
		r, ok, err := it.Next()
		if err != nil || !ok || r.E != e || r.A != a {
			break
		}
		candidates = append(candidates, r)
	}
	for _, r := range fact.CancelRetractions(candidates) {
		if r.V.Equal(v) {
			return true
		}
	}
	return false
}

func (t *Transactor) handleRebuilt(ev rebuiltEvent) {
	if t.config.Logger != nil {
		t.config.Logger.LogIndexRebuild(ev.duration, t.currentDB.MemIndexSize(), ev.err)
	}
	if t.config.Metrics != nil {
		t.config.Metrics.RecordRebuild(ev.err == nil, ev.duration)
	}

	if ev.err != nil {
		// The rebuild failed; stay on the current indices and try again
		// next time the threshold is crossed.
		t.rebuilding = false
		return
	}

	// t.currentDB.Schema() already reflects any db:ident/db:valueType facts
	// committed by catchup transactions while the rebuild was in flight;
	// ev.newDb only carries the schema as of when the rebuild started, so
	// the grown one must be carried over explicitly or those declarations
	// would vanish once the rebuild replaces currentDB.
	final := ev.newDb.WithSchema(t.currentDB.Schema())
	for _, raw := range t.catchupTxs {
		for _, r := range raw.Records {
			final = final.AddRecord(r)
		}
	}
	t.catchupTxs = nil
	t.rebuilding = false

	// The durable trees in ev.newDb only contain everything up through the
	// tx the snapshot was taken from; catchup txs folded in above are still
	// mem-overlay only, exactly as they were before the rebuild, so the
	// indexed watermark advances to the snapshot point, not to latestTx.
	t.lastIndexedTx = t.rebuildSnapshotTx

	t.currentDB = final
	if err := t.persistMetadata(); err != nil {
		return
	}

	if t.throttled {
		t.throttled = false
		t.logThrottleChange(t.currentDB.MemIndexSize())
		t.startRebuild()
	}
}

// logThrottleChange reports the transactor's current throttle state
// through both the logger and the metrics registry, whichever are set.
func (t *Transactor) logThrottleChange(memSize int) {
	if t.config.Logger != nil {
		t.config.Logger.LogThrottle(t.throttled, memSize)
	}
	if t.config.Metrics != nil {
		t.config.Metrics.SetThrottled(t.throttled)
	}
}

// startRebuild snapshots the current indices and folds each one's durable
// tree and overlay into a fresh durable tree in parallel, posting the
// result back through the event channel once all four finish.
func (t *Transactor) startRebuild() {
	t.rebuilding = true
	t.catchupTxs = []fact.RawTx{}
	t.rebuildSnapshotTx = t.latestTx

	snapshot := t.currentDB
	store := t.store
	cacheSize := t.config.CacheSize
	events := t.events

	go func() {
		start := time.Now()
		var eav, aev, ave, vae *index.Index
		g := new(errgroup.Group)
		g.Go(func() (err error) { eav, err = snapshot.EAV.Rebuild(store, cacheSize); return })
		g.Go(func() (err error) { aev, err = snapshot.AEV.Rebuild(store, cacheSize); return })
		g.Go(func() (err error) { ave, err = snapshot.AVE.Rebuild(store, cacheSize); return })
		g.Go(func() (err error) { vae, err = snapshot.VAE.Rebuild(store, cacheSize); return })

		if err := g.Wait(); err != nil {
			events <- rebuiltEvent{err: err, duration: time.Since(start)}
			return
		}

		newDb := db.New(store, snapshot.Schema(), eav, aev, ave, vae)
		events <- rebuiltEvent{newDb: newDb, duration: time.Since(start)}
	}()
}
