package tables

import (
	"context"
	"database/sql"
	"fmt"

	pe "github.com/brightpath-pm/billflow/internal/errors"
)

// ConfigEntry is a versioned configuration value. Readers see the
// highest version; writers always append a new version, never update in
// place, so operational changes are auditable.
type ConfigEntry struct {
	ConfigType string
	ConfigKey  string
	Value      string
	Version    int
}

// ConfigStore persists versioned KV configuration.
type ConfigStore struct {
	db *sql.DB
}

// Put appends a new version for (config_type, config_key).
func (s *ConfigStore) Put(ctx context.Context, configType, configKey, value string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM config_entries
		WHERE config_type = ? AND config_key = ?`, configType, configKey).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read max version: %w", err)
	}
	version++
	_, err = tx.ExecContext(ctx, `
		INSERT INTO config_entries (config_type, config_key, value, version)
		VALUES (?, ?, ?, ?)`, configType, configKey, value, version)
	if err != nil {
		return 0, fmt.Errorf("insert config entry: %w", err)
	}
	return version, tx.Commit()
}

// Get returns the latest version of a config entry.
func (s *ConfigStore) Get(ctx context.Context, configType, configKey string) (*ConfigEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT config_type, config_key, value, version FROM config_entries
		WHERE config_type = ? AND config_key = ?
		ORDER BY version DESC LIMIT 1`, configType, configKey)
	var e ConfigEntry
	err := row.Scan(&e.ConfigType, &e.ConfigKey, &e.Value, &e.Version)
	if err == sql.ErrNoRows {
		return nil, pe.Newf(pe.KindNotFound, "config %s/%s not found", configType, configKey)
	}
	if err != nil {
		return nil, fmt.Errorf("load config entry: %w", err)
	}
	return &e, nil
}

// ListType returns the latest version of every key under a config type.
func (s *ConfigStore) ListType(ctx context.Context, configType string) ([]ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.config_type, c.config_key, c.value, c.version
		FROM config_entries c
		JOIN (
			SELECT config_key, MAX(version) AS v FROM config_entries
			WHERE config_type = ? GROUP BY config_key
		) latest ON c.config_key = latest.config_key AND c.version = latest.v
		WHERE c.config_type = ?
		ORDER BY c.config_key`, configType, configType)
	if err != nil {
		return nil, fmt.Errorf("query config entries: %w", err)
	}
	defer rows.Close()

	var out []ConfigEntry
	for rows.Next() {
		var e ConfigEntry
		if err := rows.Scan(&e.ConfigType, &e.ConfigKey, &e.Value, &e.Version); err != nil {
			return nil, fmt.Errorf("scan config entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
