// Package store provides automation, blueprint and conversation persistence
// using SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jxucoder/flowstudio/internal/blueprint"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Automation is one automation being designed in the studio.
type Automation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a persisted conversation message.
type Message struct {
	ID           int64          `json:"id"`
	AutomationID string         `json:"automation_id"`
	Role         blueprint.Role `json:"role"`
	Content      string         `json:"content"`
	CreatedAt    time.Time      `json:"created_at"`
}

// EventType names what happened in an automation's design history.
type EventType string

const (
	EventPhase      EventType = "phase"      // Data: conversation phase of the turn
	EventThinking   EventType = "thinking"   // Data: one narrated thinking step
	EventAssumption EventType = "assumption" // Data: an assumption the copilot made
	EventBlueprint  EventType = "blueprint"  // Data: new blueprint version number
	EventStatus     EventType = "status"     // Data: new blueprint status
	EventHandoff    EventType = "handoff"    // Data: URL of the build issue
	EventError      EventType = "error"      // Data: error message
)

// Event represents a single event in an automation's design history.
type Event struct {
	ID           int64     `json:"id"`
	AutomationID string    `json:"automation_id"`
	Type         EventType `json:"type"`
	Data         string    `json:"data"`
	CreatedAt    time.Time `json:"created_at"`
}

// Handoff links an automation to the build issue it was handed off to.
type Handoff struct {
	AutomationID string    `json:"automation_id"`
	Repo         string    `json:"repo"`
	IssueNumber  int       `json:"issue_number"`
	URL          string    `json:"url"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store manages persistence in SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS automations (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			version    INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS blueprints (
			automation_id TEXT NOT NULL,
			version       INTEGER NOT NULL,
			data          TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (automation_id, version),
			FOREIGN KEY (automation_id) REFERENCES automations(id)
		);

		CREATE TABLE IF NOT EXISTS messages (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			automation_id TEXT NOT NULL,
			role          TEXT NOT NULL,
			content       TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (automation_id) REFERENCES automations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_automation_id
			ON messages(automation_id);

		CREATE TABLE IF NOT EXISTS automation_events (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			automation_id TEXT NOT NULL,
			type          TEXT NOT NULL,
			data          TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (automation_id) REFERENCES automations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_events_automation_id
			ON automation_events(automation_id);

		CREATE TABLE IF NOT EXISTS handoffs (
			repo          TEXT NOT NULL,
			issue_number  INTEGER NOT NULL,
			automation_id TEXT NOT NULL,
			url           TEXT NOT NULL,
			version       INTEGER NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (repo, issue_number),
			FOREIGN KEY (automation_id) REFERENCES automations(id)
		);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAutomation inserts a new automation together with its first blueprint
// version.
func (s *Store) CreateAutomation(a *Automation, bp *blueprint.Blueprint) error {
	data, err := json.Marshal(bp)
	if err != nil {
		return fmt.Errorf("encoding blueprint: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a.Version = 1
	if _, err := tx.Exec(
		`INSERT INTO automations (id, name, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Version, a.CreatedAt, a.UpdatedAt,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO blueprints (automation_id, version, data, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.Version, string(data), a.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAutomation retrieves an automation by ID.
func (s *Store) GetAutomation(id string) (*Automation, error) {
	row := s.db.QueryRow(
		`SELECT id, name, version, created_at, updated_at
		 FROM automations WHERE id = ?`, id,
	)
	return scanAutomation(row)
}

// ListAutomations returns all automations ordered by creation time (newest first).
func (s *Store) ListAutomations() ([]*Automation, error) {
	rows, err := s.db.Query(
		`SELECT id, name, version, created_at, updated_at
		 FROM automations ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var automations []*Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		automations = append(automations, a)
	}
	return automations, rows.Err()
}

// GetBlueprint returns the latest blueprint version of an automation.
func (s *Store) GetBlueprint(automationID string) (*blueprint.Blueprint, int, error) {
	var (
		version int
		data    string
	)
	err := s.db.QueryRow(
		`SELECT version, data FROM blueprints
		 WHERE automation_id = ? ORDER BY version DESC LIMIT 1`, automationID,
	).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	var bp blueprint.Blueprint
	if err := json.Unmarshal([]byte(data), &bp); err != nil {
		return nil, 0, fmt.Errorf("decoding blueprint %s v%d: %w", automationID, version, err)
	}
	return &bp, version, nil
}

// SaveBlueprint stores bp as the next version and returns that version.
func (s *Store) SaveBlueprint(automationID string, bp *blueprint.Blueprint) (int, error) {
	data, err := json.Marshal(bp)
	if err != nil {
		return 0, fmt.Errorf("encoding blueprint: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRow(`SELECT version FROM automations WHERE id = ?`, automationID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	version++

	now := time.Now().UTC()
	if _, err := tx.Exec(
		`INSERT INTO blueprints (automation_id, version, data, created_at) VALUES (?, ?, ?, ?)`,
		automationID, version, string(data), now,
	); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(
		`UPDATE automations SET version = ?, updated_at = ? WHERE id = ?`,
		version, now, automationID,
	); err != nil {
		return 0, err
	}
	return version, tx.Commit()
}

// AddMessage appends a conversation message and sets its ID.
func (s *Store) AddMessage(msg *Message) error {
	result, err := s.db.Exec(
		`INSERT INTO messages (automation_id, role, content, created_at)
		 VALUES (?, ?, ?, ?)`,
		msg.AutomationID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

// GetMessages returns the full conversation of an automation, oldest first.
func (s *Store) GetMessages(automationID string) ([]*Message, error) {
	rows, err := s.db.Query(
		`SELECT id, automation_id, role, content, created_at
		 FROM messages WHERE automation_id = ? ORDER BY id ASC`,
		automationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.AutomationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AddEvent inserts a new event and sets its ID.
func (s *Store) AddEvent(event *Event) error {
	result, err := s.db.Exec(
		`INSERT INTO automation_events (automation_id, type, data, created_at)
		 VALUES (?, ?, ?, ?)`,
		event.AutomationID, event.Type, event.Data, event.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}

// GetEvents returns events for an automation, optionally after a given event ID.
func (s *Store) GetEvents(automationID string, afterID int64) ([]*Event, error) {
	rows, err := s.db.Query(
		`SELECT id, automation_id, type, data, created_at
		 FROM automation_events
		 WHERE automation_id = ? AND id > ?
		 ORDER BY id ASC`,
		automationID, afterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.AutomationID, &e.Type, &e.Data, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// AddHandoff records that an automation was handed off to an issue.
// Repo names are stored lowercased since GitHub treats them case-insensitively.
func (s *Store) AddHandoff(h *Handoff) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO handoffs (repo, issue_number, automation_id, url, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		strings.ToLower(h.Repo), h.IssueNumber, h.AutomationID, h.URL, h.Version, h.CreatedAt,
	)
	return err
}

// GetHandoffByIssue finds the handoff for an issue in repo.
func (s *Store) GetHandoffByIssue(repo string, number int) (*Handoff, error) {
	h := &Handoff{}
	err := s.db.QueryRow(
		`SELECT repo, issue_number, automation_id, url, version, created_at
		 FROM handoffs WHERE repo = ? AND issue_number = ?`,
		strings.ToLower(repo), number,
	).Scan(&h.Repo, &h.IssueNumber, &h.AutomationID, &h.URL, &h.Version, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAutomation(row scannable) (*Automation, error) {
	a := &Automation{}
	err := row.Scan(&a.ID, &a.Name, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Conversation converts persisted messages into the copilot's message type.
func Conversation(msgs []*Message) []blueprint.Message {
	out := make([]blueprint.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, blueprint.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
