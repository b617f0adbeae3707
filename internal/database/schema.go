package database

// Migrations returns the schema migration statements.
// Money columns are exact fixed-point NUMERIC; identifiers are strings.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			phone      TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL,
			email      TEXT,
			avatar     TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS campuses (
			id       TEXT PRIMARY KEY,
			name     TEXT NOT NULL,
			location TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS merchants (
			id        TEXT PRIMARY KEY,
			name      TEXT NOT NULL,
			category  TEXT NOT NULL,
			campus_id TEXT REFERENCES campuses(id),
			icon      TEXT,
			location  TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS plans (
			id                 TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			cap_per_head       NUMERIC(12,2) NOT NULL,
			window_start       TIMESTAMPTZ NOT NULL,
			window_end         TIMESTAMPTZ NOT NULL,
			merchant_whitelist TEXT[] NOT NULL DEFAULT '{}',
			status             TEXT NOT NULL DEFAULT 'active',
			created_by         TEXT NOT NULL REFERENCES users(id),
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (window_start < window_end)
		)`,

		`CREATE TABLE IF NOT EXISTS plan_members (
			id        TEXT PRIMARY KEY,
			plan_id   TEXT NOT NULL REFERENCES plans(id),
			user_id   TEXT NOT NULL REFERENCES users(id),
			state     TEXT NOT NULL DEFAULT 'active',
			joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (plan_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plan_members_user ON plan_members(user_id, state)`,

		// amount is the remaining balance; CHECK keeps it non-negative even
		// under a buggy concurrent writer
		`CREATE TABLE IF NOT EXISTS vouchers (
			id             TEXT PRIMARY KEY,
			plan_id        TEXT NOT NULL REFERENCES plans(id),
			member_user_id TEXT NOT NULL REFERENCES users(id),
			amount         NUMERIC(12,2) NOT NULL CHECK (amount >= 0),
			merchant_list  TEXT[] NOT NULL DEFAULT '{}',
			expires_at     TIMESTAMPTZ NOT NULL,
			state          TEXT NOT NULL DEFAULT 'active',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vouchers_plan ON vouchers(plan_id)`,

		`CREATE TABLE IF NOT EXISTS voucher_redemptions (
			id             TEXT PRIMARY KEY,
			voucher_id     TEXT NOT NULL REFERENCES vouchers(id),
			amount         NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			merchant_id    TEXT NOT NULL REFERENCES merchants(id),
			transaction_id TEXT,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_redemptions_voucher ON voucher_redemptions(voucher_id)`,

		// cap_amount is the remaining cap
		`CREATE TABLE IF NOT EXISTS mandates (
			id             TEXT PRIMARY KEY,
			plan_id        TEXT NOT NULL REFERENCES plans(id),
			member_user_id TEXT NOT NULL REFERENCES users(id),
			cap_amount     NUMERIC(12,2) NOT NULL CHECK (cap_amount >= 0),
			valid_from     TIMESTAMPTZ NOT NULL,
			valid_to       TIMESTAMPTZ NOT NULL,
			state          TEXT NOT NULL DEFAULT 'active',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (valid_from < valid_to)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mandates_plan ON mandates(plan_id)`,

		`CREATE TABLE IF NOT EXISTS mandate_executions (
			id             TEXT PRIMARY KEY,
			mandate_id     TEXT NOT NULL REFERENCES mandates(id),
			amount         NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			merchant_id    TEXT NOT NULL REFERENCES merchants(id),
			transaction_id TEXT,
			status         TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_mandate ON mandate_executions(mandate_id)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id          TEXT PRIMARY KEY,
			intent_id   TEXT NOT NULL UNIQUE,
			plan_id     TEXT NOT NULL REFERENCES plans(id),
			merchant_id TEXT NOT NULL REFERENCES merchants(id),
			amount      NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			mode        TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'pending',
			rrn_stub    TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_plan ON transactions(plan_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id         TEXT PRIMARY KEY,
			txn_id     TEXT NOT NULL REFERENCES transactions(id),
			account    TEXT NOT NULL,
			leg        TEXT NOT NULL CHECK (leg IN ('debit', 'credit')),
			amount     NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_txn ON ledger_entries(txn_id)`,

		// response_data stays NULL between the claim and the completion of
		// the first request carrying the key
		`CREATE TABLE IF NOT EXISTS idempotent_requests (
			id              TEXT PRIMARY KEY,
			idempotency_key TEXT NOT NULL UNIQUE,
			status_code     INTEGER,
			response_data   JSONB,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
}
