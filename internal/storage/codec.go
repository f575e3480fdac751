package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"commcoop/internal/genotype"
	"commcoop/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion stamps a record with the versions this build writes.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodePopulation(p model.PopulationSnapshot) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePopulation(data []byte) (model.PopulationSnapshot, error) {
	var population model.PopulationSnapshot
	if err := json.Unmarshal(data, &population); err != nil {
		return model.PopulationSnapshot{}, err
	}
	if err := checkVersion(population.VersionedRecord); err != nil {
		return model.PopulationSnapshot{}, err
	}
	return population, nil
}

// StampLineage returns a copy of records with unversioned entries stamped
// with the current versions.
func StampLineage(records []model.LineageRecord) []model.LineageRecord {
	out := make([]model.LineageRecord, len(records))
	for i, r := range records {
		if r.VersionedRecord == (model.VersionedRecord{}) {
			r.VersionedRecord = CurrentVersion()
		}
		out[i] = r
	}
	return out
}

func EncodeLineage(records []model.LineageRecord) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeLineage(data []byte) ([]model.LineageRecord, error) {
	var records []model.LineageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func EncodeGenerationStats(stats []model.GenerationStats) ([]byte, error) {
	return json.Marshal(stats)
}

func DecodeGenerationStats(data []byte) ([]model.GenerationStats, error) {
	var stats []model.GenerationStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// EncodeStrategy serializes an automaton's tables.
func EncodeStrategy(s genotype.Strategy) ([]byte, error) {
	switch s.(type) {
	case *genotype.FSM, *genotype.TapeMachine:
		return json.Marshal(s)
	default:
		return nil, fmt.Errorf("%w: %s", genotype.ErrUnknownKind, s.Kind())
	}
}

// DecodeStrategy rebuilds an automaton of the given kind and rejects tables
// that are not total.
func DecodeStrategy(kind string, data []byte) (genotype.Strategy, error) {
	var s genotype.Strategy
	switch kind {
	case genotype.KindFSM:
		f := &genotype.FSM{}
		if err := json.Unmarshal(data, f); err != nil {
			return nil, err
		}
		s = f
	case genotype.KindTape:
		m := &genotype.TapeMachine{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, err
		}
		s = m
	default:
		return nil, fmt.Errorf("%w: %s", genotype.ErrUnknownKind, kind)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
