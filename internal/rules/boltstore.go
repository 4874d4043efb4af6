package rules

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketJobs         = []byte("jobs")
	bucketRulesInclude = []byte("rules_include")
	bucketRulesExclude = []byte("rules_exclude")
)

// BoltStore implements Store using a bbolt database file, one per profile
// index root.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) rules.db under indexDir.
func NewBoltStore(indexDir string) (*BoltStore, error) {
	dbPath := filepath.Join(indexDir, "rules.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("rules: opening %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketJobs, bucketRulesInclude, bucketRulesExclude} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("creating bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// ListJobs returns every saved job summary.
func (s *BoltStore) ListJobs() ([]JobSummary, error) {
	var jobs []JobSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.ForEach(func(k, v []byte) error {
			var summary JobSummary
			if err := json.Unmarshal(v, &summary); err != nil {
				return err
			}
			jobs = append(jobs, summary)
			return nil
		})
	})
	return jobs, err
}

// LoadRules returns the include/exclude pattern set saved for jobID, or an
// empty RuleSet if none has been saved yet.
func (s *BoltStore) LoadRules(jobID string) (RuleSet, error) {
	var rs RuleSet
	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketRulesInclude).Get([]byte(jobID)); data != nil {
			if err := json.Unmarshal(data, &rs.Include); err != nil {
				return err
			}
		}
		if data := tx.Bucket(bucketRulesExclude).Get([]byte(jobID)); data != nil {
			if err := json.Unmarshal(data, &rs.Exclude); err != nil {
				return err
			}
		}
		return nil
	})
	return rs, err
}

// SaveRules normalizes and persists a rule set for jobID under name,
// upserting the job summary alongside it.
func (s *BoltStore) SaveRules(jobID, name string, rs RuleSet) error {
	normalized, err := NormalizeRuleSet(rs)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		summary, err := json.Marshal(JobSummary{JobID: jobID, Name: name})
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketJobs).Put([]byte(jobID), summary); err != nil {
			return err
		}

		include, err := json.Marshal(normalized.Include)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketRulesInclude).Put([]byte(jobID), include); err != nil {
			return err
		}

		exclude, err := json.Marshal(normalized.Exclude)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRulesExclude).Put([]byte(jobID), exclude)
	})
}
