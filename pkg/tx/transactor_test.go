package tx

import (
	"testing"
	"time"

	"github.com/nainya/cliodb/pkg/fact"
	"github.com/nainya/cliodb/pkg/kv/memstore"
	"github.com/nainya/cliodb/pkg/query"
)

func startTest(t *testing.T, cfg Config) *Handle {
	t.Helper()
	store := memstore.New()
	h, err := Start(store, "", cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.Close)
	return h
}

func TestBootstrapDeclaresReservedIdents(t *testing.T) {
	h := startTest(t, DefaultConfig())

	report := h.Transact(fact.Tx{Items: []fact.TxItem{
		fact.NewEntityItem(map[string]fact.Value{
			"db:ident": fact.IdentValue("person/name"),
		}),
	}})
	if !report.Success {
		t.Fatalf("transact failed: %s", report.FailureMessage)
	}
	if len(report.NewEntities) != 1 {
		t.Fatalf("expected 1 new entity, got %d", len(report.NewEntities))
	}
}

func TestAddAndRetractRoundTrip(t *testing.T) {
	h := startTest(t, DefaultConfig())

	create := h.Transact(fact.Tx{Items: []fact.TxItem{
		fact.NewEntityItem(map[string]fact.Value{
			"db:ident": fact.IdentValue("color/red"),
		}),
	}})
	if !create.Success {
		t.Fatalf("create failed: %s", create.FailureMessage)
	}
	e := create.NewEntities[0]

	retract := h.Transact(fact.Tx{Items: []fact.TxItem{
		fact.Retract(e, "db:ident", fact.IdentValue("color/red")),
	}})
	if !retract.Success {
		t.Fatalf("retract failed: %s", retract.FailureMessage)
	}
}

func TestRetractingNonexistentFactFails(t *testing.T) {
	h := startTest(t, DefaultConfig())

	report := h.Transact(fact.Tx{Items: []fact.TxItem{
		fact.Retract(fact.Entity(999999), "db:ident", fact.IdentValue("nope")),
	}})
	if report.Success {
		t.Fatal("expected retraction of a nonexistent fact to fail")
	}
	if report.FailureMessage == "" {
		t.Fatal("expected a failure message")
	}
}

func TestRuntimeAttributeDeclaredAndUsedInSameTx(t *testing.T) {
	h := startTest(t, DefaultConfig())

	// Declare a brand new attribute (person/age, a long) and use it on a
	// new entity within the very same transaction.
	report := h.Transact(fact.Tx{Items: []fact.TxItem{
		fact.NewEntityItem(map[string]fact.Value{
			"db:ident":     fact.IdentValue("person/age"),
			"db:valueType": fact.IdentValue("db:type:long"),
		}),
	}})
	if !report.Success {
		t.Fatalf("declaring person/age failed: %s", report.FailureMessage)
	}

	use := h.Transact(fact.Tx{Items: []fact.TxItem{
		fact.NewEntityItem(map[string]fact.Value{
			"person/age": fact.LongValue(42),
		}),
	}})
	if !use.Success {
		t.Fatalf("expected newly declared attribute to be usable immediately, got: %s", use.FailureMessage)
	}
}

func TestUnknownAttributeFailsClosed(t *testing.T) {
	h := startTest(t, DefaultConfig())

	report := h.Transact(fact.Tx{Items: []fact.TxItem{
		fact.NewEntityItem(map[string]fact.Value{
			"no/such/attribute": fact.LongValue(1),
		}),
	}})
	if report.Success {
		t.Fatal("expected use of an undeclared attribute to fail")
	}
}

func TestRebuildTriggersPastThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RebuildThreshold = 5
	h := startTest(t, cfg)

	for i := 0; i < 20; i++ {
		report := h.Transact(fact.Tx{Items: []fact.TxItem{
			fact.NewEntityItem(map[string]fact.Value{
				"db:ident": fact.IdentValue(uniqueIdent(i)),
			}),
		}})
		if !report.Success {
			t.Fatalf("tx %d failed: %s", i, report.FailureMessage)
		}
	}

	// Give the background rebuild goroutine a moment to post its result;
	// the transactor processes it on its own event loop so there is no
	// synchronous signal to wait on here.
	time.Sleep(200 * time.Millisecond)

	final := h.Transact(fact.Tx{Items: []fact.TxItem{
		fact.NewEntityItem(map[string]fact.Value{
			"db:ident": fact.IdentValue("after/rebuild"),
		}),
	}})
	if !final.Success {
		t.Fatalf("post-rebuild tx failed: %s", final.FailureMessage)
	}
}

func uniqueIdent(i int) string {
	return "rebuild/test" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

// TestRestartAfterRebuildReplaysPostRebuildCommits guards the LastIndexedTx
// watermark: a commit made after a background rebuild finishes is only ever
// folded into the durable trees by a later rebuild, so a restart must still
// find it by replaying the transaction log from the watermark the rebuild
// actually reached — not from whatever tx happened to be latest when the
// process shut down.
func TestRestartAfterRebuildReplaysPostRebuildCommits(t *testing.T) {
	store := memstore.New()
	cfg := DefaultConfig()
	cfg.RebuildThreshold = 5

	h, err := Start(store, "", cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 20; i++ {
		report := h.Transact(fact.Tx{Items: []fact.TxItem{
			fact.NewEntityItem(map[string]fact.Value{
				"db:ident": fact.IdentValue(uniqueIdent(i)),
			}),
		}})
		if !report.Success {
			t.Fatalf("tx %d failed: %s", i, report.FailureMessage)
		}
	}

	// Give the background rebuild goroutine time to finish and for the
	// transactor to process its rebuiltEvent.
	time.Sleep(200 * time.Millisecond)

	postRebuild := h.Transact(fact.Tx{Items: []fact.TxItem{
		fact.NewEntityItem(map[string]fact.Value{
			"db:ident": fact.IdentValue("post/rebuild/marker"),
		}),
	}})
	if !postRebuild.Success {
		t.Fatalf("post-rebuild commit failed: %s", postRebuild.FailureMessage)
	}
	marker := postRebuild.NewEntities[0]

	h.Close()

	restarted := &Transactor{store: store, config: cfg}
	if err := restarted.load(); err != nil {
		t.Fatalf("load after restart: %v", err)
	}

	v := query.NewVar("e")
	q := query.Query{
		Find: []query.Var{v},
		Clauses: []query.Clause{
			{
				Entity:    query.Unbound(v),
				Attribute: query.BoundIdent("db:ident"),
				Value:     query.Bound(fact.IdentValue("post/rebuild/marker")),
			},
		},
	}
	rel, err := restarted.currentDB.Query(q)
	if err != nil {
		t.Fatalf("Query after restart: %v", err)
	}
	if len(rel.Tuples) != 1 {
		t.Fatalf("post-rebuild commit lost across restart: got %d tuples, want 1", len(rel.Tuples))
	}
	if rel.Tuples[0][0].Ref != marker {
		t.Errorf("got entity %v, want %v", rel.Tuples[0][0].Ref, marker)
	}
}
