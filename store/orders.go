package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// OrderRecord is one journaled transport order, keyed by correlation id.
type OrderRecord struct {
	ID            int64      `json:"id"`
	CorrelationID string     `json:"correlation_id"`
	SenderID      string     `json:"sender_id"`
	StartModule   string     `json:"start_module"`
	GoalModule    string     `json:"goal_module"`
	BoxID         int        `json:"box_id"`
	BoxColor      string     `json:"box_color"`
	BoxType       string     `json:"box_type"`
	Status        string     `json:"status"`
	ResponderID   string     `json:"responder_id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// OrderEvent is one lifecycle transition of a journaled order.
type OrderEvent struct {
	ID            int64     `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Status        string    `json:"status"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const orderSelectCols = `id, correlation_id, sender_id, start_module, goal_module, box_id, box_color, box_type, status, responder_id, created_at, updated_at, resolved_at`

func scanOrderRecord(row interface{ Scan(...any) error }) (*OrderRecord, error) {
	var o OrderRecord
	var createdAt, updatedAt, resolvedAt any
	err := row.Scan(&o.ID, &o.CorrelationID, &o.SenderID, &o.StartModule, &o.GoalModule,
		&o.BoxID, &o.BoxColor, &o.BoxType, &o.Status, &o.ResponderID,
		&createdAt, &updatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	o.ResolvedAt = parseTimePtr(resolvedAt)
	return &o, nil
}

// RecordDispatch journals a freshly published order in "dispatched" state.
func (db *DB) RecordDispatch(o *OrderRecord) error {
	if o.Status == "" {
		o.Status = "dispatched"
	}
	_, err := db.Exec(db.Q(`INSERT INTO orders (correlation_id, sender_id, start_module, goal_module, box_id, box_color, box_type, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		o.CorrelationID, o.SenderID, o.StartModule, o.GoalModule,
		o.BoxID, o.BoxColor, o.BoxType, o.Status)
	if err != nil {
		return fmt.Errorf("record dispatch %s: %w", o.CorrelationID, err)
	}
	return db.appendEvent(o.CorrelationID, o.Status, "")
}

// ResolveOrder moves a journaled order to its terminal status. Unknown
// correlation ids still get an event row so out-of-band responses stay
// visible in the journal.
func (db *DB) ResolveOrder(correlationID, status, responderID string) error {
	_, err := db.Exec(db.Q(`UPDATE orders SET status=?, responder_id=?, updated_at=datetime('now','localtime'), resolved_at=datetime('now','localtime') WHERE correlation_id=?`),
		status, responderID, correlationID)
	if err != nil {
		return fmt.Errorf("resolve order %s: %w", correlationID, err)
	}
	return db.appendEvent(correlationID, status, responderID)
}

func (db *DB) appendEvent(correlationID, status, detail string) error {
	_, err := db.Exec(db.Q(`INSERT INTO order_events (correlation_id, status, detail) VALUES (?, ?, ?)`),
		correlationID, status, detail)
	return err
}

// GetOrder looks up one journaled order by correlation id.
func (db *DB) GetOrder(correlationID string) (*OrderRecord, error) {
	row := db.QueryRow(db.Q(`SELECT `+orderSelectCols+` FROM orders WHERE correlation_id=?`), correlationID)
	o, err := scanOrderRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", correlationID, err)
	}
	return o, err
}

// ListRecentOrders returns the newest orders first.
func (db *DB) ListRecentOrders(limit int) ([]*OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(db.Q(`SELECT `+orderSelectCols+` FROM orders ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*OrderRecord
	for rows.Next() {
		o, err := scanOrderRecord(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListOrderEvents returns the lifecycle trail of one order, oldest first.
func (db *DB) ListOrderEvents(correlationID string) ([]*OrderEvent, error) {
	rows, err := db.Query(db.Q(`SELECT id, correlation_id, status, detail, created_at FROM order_events WHERE correlation_id=? ORDER BY id ASC`), correlationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*OrderEvent
	for rows.Next() {
		var e OrderEvent
		var createdAt any
		if err := rows.Scan(&e.ID, &e.CorrelationID, &e.Status, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CountOrdersByStatus returns a status -> count breakdown of the journal.
func (db *DB) CountOrdersByStatus() (map[string]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
