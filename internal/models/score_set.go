package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MaxScoreKeys bounds the number of sub-scores per score group.
const MaxScoreKeys = 10

// ScoreEntry is one keyed sub-score within a score group.
type ScoreEntry struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// ScoreSet is an ordered collection of keyed sub-scores. Order of entry is
// preserved so the audit trail shows score columns the way they were captured.
// Stored as a JSONB array.
type ScoreSet []ScoreEntry

// Get returns the value stored under key.
func (s ScoreSet) Get(key string) (float64, bool) {
	for _, entry := range s {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return 0, false
}

// Set replaces the value under key or appends a new entry.
func (s *ScoreSet) Set(key string, value float64) {
	for i, entry := range *s {
		if entry.Key == key {
			(*s)[i].Value = value
			return
		}
	}
	*s = append(*s, ScoreEntry{Key: key, Value: value})
}

// Mean returns the arithmetic mean of all values, nil for an empty set.
func (s ScoreSet) Mean() *float64 {
	if len(s) == 0 {
		return nil
	}
	sum := 0.0
	for _, entry := range s {
		sum += entry.Value
	}
	mean := sum / float64(len(s))
	return &mean
}

// Clone returns a deep copy.
func (s ScoreSet) Clone() ScoreSet {
	if s == nil {
		return nil
	}
	clone := make(ScoreSet, len(s))
	copy(clone, s)
	return clone
}

// Value implements driver.Valuer for JSONB storage.
func (s ScoreSet) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB storage.
func (s *ScoreSet) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported score set source %T", src)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(raw, s)
}
