package postgres

// Schema creates the tables used by the store. Deployments manage migrations
// externally, but local clusters and tests apply it directly.
const Schema = `
	CREATE SEQUENCE IF NOT EXISTS ledger__core_slot;

	CREATE TABLE IF NOT EXISTS ledger__core_account(
		address TEXT NOT NULL PRIMARY KEY,

		owner TEXT NOT NULL,
		lamports BIGINT NOT NULL,
		data BYTEA NOT NULL,

		slot BIGINT NOT NULL,

		last_updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
`
