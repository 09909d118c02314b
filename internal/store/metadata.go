package store

import "database/sql"

// Well-known metadata keys.
const (
	MetaAnswerKeyPath = "answer_key_path"
	MetaAnswerKeyHash = "answer_key_sha256"
)

// SetMetadata upserts a key-value pair.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO server_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM server_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// RecordAnswerKey remembers which answer key file graded the stored
// submissions. It reports whether the content changed since the last call.
func (s *Store) RecordAnswerKey(path, hash string) (changed bool, err error) {
	prev, err := s.GetMetadata(MetaAnswerKeyHash)
	if err != nil {
		return false, err
	}
	if err := s.SetMetadata(MetaAnswerKeyPath, path); err != nil {
		return false, err
	}
	if err := s.SetMetadata(MetaAnswerKeyHash, hash); err != nil {
		return false, err
	}
	return prev != "" && prev != hash, nil
}
