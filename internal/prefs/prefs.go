// Package prefs persists viewer preferences in a small SQLite database.
//
// Preferences are stored as string key/value pairs. A key is only present
// when its value differs from the default, so an empty table means "all
// defaults".
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	_ "github.com/mattn/go-sqlite3"

	"github.com/wesm/pitwatch/internal/fileutil"
)

// Preference keys.
const (
	KeyHideTagColors = "hideTagColors"
	KeyHideHTMLCheck = "hideHTMLCheck"
	KeyHideLinkCheck = "hideLinkCheck"
	KeyHideSpamCheck = "hideSpamCheck"
	KeyTimeZone      = "timeZone"
	KeyNotifications = "notifications"
)

// Keys lists every known preference key.
var Keys = []string{
	KeyHideTagColors,
	KeyHideHTMLCheck,
	KeyHideLinkCheck,
	KeyHideSpamCheck,
	KeyTimeZone,
	KeyNotifications,
}

// ErrUnknownKey is returned by Get and Set for keys not in Keys.
var ErrUnknownKey = errors.New("unknown preference key")

const sqliteParams = "?_journal_mode=WAL&_busy_timeout=5000"

// Settings is the decoded preference set.
type Settings struct {
	ShowTagColors bool
	ShowHTMLCheck bool
	ShowLinkCheck bool
	ShowSpamCheck bool
	// TimeZone is an IANA zone name; empty means the local zone.
	TimeZone      string
	Notifications bool
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Settings {
	return Settings{
		ShowTagColors: true,
		ShowHTMLCheck: true,
		ShowLinkCheck: true,
		ShowSpamCheck: true,
	}
}

// Location resolves TimeZone, falling back to the local zone when it is
// empty or unknown.
func (s Settings) Location() *time.Location {
	if s.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// entries encodes s. Keys holding their default value are omitted.
func (s Settings) entries() map[string]string {
	m := map[string]string{}
	hide := func(key string, show bool) {
		if !show {
			m[key] = "1"
		}
	}
	hide(KeyHideTagColors, s.ShowTagColors)
	hide(KeyHideHTMLCheck, s.ShowHTMLCheck)
	hide(KeyHideLinkCheck, s.ShowLinkCheck)
	hide(KeyHideSpamCheck, s.ShowSpamCheck)
	if s.TimeZone != "" && s.TimeZone != time.Local.String() {
		m[KeyTimeZone] = s.TimeZone
	}
	if s.Notifications {
		m[KeyNotifications] = "1"
	}
	return m
}

func decode(m map[string]string) Settings {
	s := Defaults()
	s.ShowTagColors = m[KeyHideTagColors] != "1"
	s.ShowHTMLCheck = m[KeyHideHTMLCheck] != "1"
	s.ShowLinkCheck = m[KeyHideLinkCheck] != "1"
	s.ShowSpamCheck = m[KeyHideSpamCheck] != "1"
	s.TimeZone = m[KeyTimeZone]
	s.Notifications = m[KeyNotifications] == "1"
	return s
}

// NotificationsSupported reports whether new-message notices can be shown
// on the terminal behind fd.
func NotificationsSupported(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Store is a preference database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the preference database at path.
func Open(path string) (*Store, error) {
	if err := fileutil.SecureMkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create prefs directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+sqliteParams)
	if err != nil {
		return nil, fmt.Errorf("open prefs: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping prefs: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate prefs: %w", err)
	}
	if err := fileutil.SecureChmod(path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("restrict prefs permissions: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Entries returns the stored key/value pairs.
func (s *Store) Entries() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM preferences")
	if err != nil {
		return nil, fmt.Errorf("query prefs: %w", err)
	}
	defer rows.Close()

	m := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan prefs: %w", err)
		}
		m[k] = v
	}
	return m, rows.Err()
}

// Load returns the current settings.
func (s *Store) Load() (Settings, error) {
	m, err := s.Entries()
	if err != nil {
		return Settings{}, err
	}
	return decode(m), nil
}

// Update applies fn to the current settings and persists the result. Only
// keys whose value changed are written; keys returning to their default
// are removed.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return Settings{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	before := map[string]string{}
	rows, err := tx.Query("SELECT key, value FROM preferences")
	if err != nil {
		return Settings{}, fmt.Errorf("query prefs: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return Settings{}, fmt.Errorf("scan prefs: %w", err)
		}
		before[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Settings{}, err
	}

	settings := decode(before)
	fn(&settings)
	after := settings.entries()

	for _, k := range Keys {
		old, had := before[k]
		v, has := after[k]
		switch {
		case has && (!had || old != v):
			if _, err := tx.Exec(`
				INSERT INTO preferences (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value
			`, k, v); err != nil {
				return Settings{}, fmt.Errorf("write %s: %w", k, err)
			}
		case had && !has:
			if _, err := tx.Exec("DELETE FROM preferences WHERE key = ?", k); err != nil {
				return Settings{}, fmt.Errorf("remove %s: %w", k, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return Settings{}, fmt.Errorf("commit prefs: %w", err)
	}
	return settings, nil
}

// Get returns the effective value of key in its stored form, which is
// empty for defaults.
func (s *Store) Get(key string) (string, error) {
	if !slices.Contains(Keys, key) {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	m, err := s.Entries()
	if err != nil {
		return "", err
	}
	return m[key], nil
}

// Set parses value for key and updates the settings. Boolean keys accept
// anything strconv.ParseBool does; an empty value restores the default.
func (s *Store) Set(key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("%w: %q (known: %s)", ErrUnknownKey, key, strings.Join(Keys, ", "))
	}
	value = strings.TrimSpace(value)

	if key == KeyTimeZone {
		if value != "" {
			if _, err := time.LoadLocation(value); err != nil {
				return fmt.Errorf("invalid time zone %q: %w", value, err)
			}
		}
		_, err := s.Update(func(st *Settings) { st.TimeZone = value })
		return err
	}

	on := false
	if value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value %q for %s: want true or false", value, key)
		}
		on = b
	}
	_, err := s.Update(func(st *Settings) {
		switch key {
		case KeyHideTagColors:
			st.ShowTagColors = !on
		case KeyHideHTMLCheck:
			st.ShowHTMLCheck = !on
		case KeyHideLinkCheck:
			st.ShowLinkCheck = !on
		case KeyHideSpamCheck:
			st.ShowSpamCheck = !on
		case KeyNotifications:
			st.Notifications = on
		}
	})
	return err
}

// SortedEntries returns the stored pairs ordered by key.
func SortedEntries(m map[string]string) [][2]string {
	out := make([][2]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, [2]string{k, m[k]})
	}
	return out
}
