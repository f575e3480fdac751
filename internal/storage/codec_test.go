package storage

import (
	"errors"
	"math/rand"
	"testing"

	"commcoop/internal/evo"
	"commcoop/internal/genotype"
	"commcoop/internal/model"
)

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	payload, err := EncodeRun(model.RunRecord{ID: "r", VersionedRecord: model.VersionedRecord{SchemaVersion: 99, CodecVersion: 1}})
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	if _, err := DecodeRun(payload); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}

	lineage, err := EncodeLineage([]model.LineageRecord{{AgentID: "a"}})
	if err != nil {
		t.Fatalf("encode lineage: %v", err)
	}
	if _, err := DecodeLineage(lineage); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected lineage version mismatch, got %v", err)
	}
}

func TestStrategyCodecRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	for _, kind := range []string{genotype.KindFSM, genotype.KindTape} {
		s, err := genotype.NewRandom(kind, rng, genotype.Params{States: 4, Tokens: 3, TerminalRuleRate: genotype.DefaultTerminalRuleRate})
		if err != nil {
			t.Fatalf("new %s: %v", kind, err)
		}
		payload, err := EncodeStrategy(s)
		if err != nil {
			t.Fatalf("encode %s: %v", kind, err)
		}
		decoded, err := DecodeStrategy(kind, payload)
		if err != nil {
			t.Fatalf("decode %s: %v", kind, err)
		}
		if decoded.Fingerprint() != s.Fingerprint() {
			t.Fatalf("%s fingerprint changed across codec", kind)
		}
	}
}

func TestDecodeStrategyRejectsPartialTables(t *testing.T) {
	payload := []byte(`{"tokens":2,"action_map":[-1,1],"transitions":[[0,1]]}`)
	if _, err := DecodeStrategy(genotype.KindFSM, payload); !errors.Is(err, genotype.ErrNotTotal) {
		t.Fatalf("expected totality error, got %v", err)
	}
	if _, err := DecodeStrategy("grid", payload); !errors.Is(err, genotype.ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
}

func TestPopulationSnapshotRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pop, _, err := evo.NewRandomPopulation(rng, genotype.KindTape, genotype.Params{States: 3, Tokens: 4, TerminalRuleRate: genotype.DefaultTerminalRuleRate}, 5)
	if err != nil {
		t.Fatalf("new population: %v", err)
	}
	pop.Generation = 7

	snap, err := SnapshotPopulation("run-1:final", "run-1", pop)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	payload, err := EncodePopulation(snap)
	if err != nil {
		t.Fatalf("encode population: %v", err)
	}
	decoded, err := DecodePopulation(payload)
	if err != nil {
		t.Fatalf("decode population: %v", err)
	}
	restored, err := RestorePopulation(decoded)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Generation != 7 || restored.Len() != pop.Len() {
		t.Fatalf("unexpected restored population: generation=%d len=%d", restored.Generation, restored.Len())
	}
	for i, a := range restored.Agents {
		if a.ID() != pop.Agents[i].ID() || a.Strategy().Fingerprint() != pop.Agents[i].Strategy().Fingerprint() {
			t.Fatalf("agent %d differs after restore", i)
		}
		if a.Strategy() == pop.Agents[i].Strategy() {
			t.Fatalf("agent %d aliases the original automaton", i)
		}
	}
	if _, err := SnapshotPopulation("", "run-1", pop); err == nil {
		t.Fatal("expected id error")
	}
}

func TestStampLineageKeepsExistingVersions(t *testing.T) {
	old := model.VersionedRecord{SchemaVersion: 9, CodecVersion: 9}
	in := []model.LineageRecord{{AgentID: "a"}, {VersionedRecord: old, AgentID: "b"}}
	out := StampLineage(in)
	if out[0].VersionedRecord != CurrentVersion() || out[1].VersionedRecord != old {
		t.Fatalf("unexpected stamping: %+v", out)
	}
	if in[0].VersionedRecord != (model.VersionedRecord{}) {
		t.Fatal("expected input records untouched")
	}
	data, err := EncodeLineage(out[:1])
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeLineage(data); err != nil {
		t.Fatalf("expected stamped lineage to decode: %v", err)
	}
}
