package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS orders (
    id              BIGSERIAL PRIMARY KEY,
    correlation_id  TEXT NOT NULL UNIQUE,
    sender_id       TEXT NOT NULL DEFAULT '',
    start_module    TEXT NOT NULL DEFAULT '',
    goal_module     TEXT NOT NULL DEFAULT '',
    box_id          INTEGER NOT NULL DEFAULT 0,
    box_color       TEXT NOT NULL DEFAULT '',
    box_type        TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'dispatched',
    responder_id    TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_orders_cid ON orders(correlation_id);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS order_events (
    id              BIGSERIAL PRIMARY KEY,
    correlation_id  TEXT NOT NULL,
    status          TEXT NOT NULL,
    detail          TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_order_events_cid ON order_events(correlation_id);

CREATE TABLE IF NOT EXISTS admin_users (
    id              BIGSERIAL PRIMARY KEY,
    username        TEXT NOT NULL UNIQUE,
    password_hash   TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
