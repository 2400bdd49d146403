package postgres

// Schema creates the record table. Deployments manage migrations externally,
// but local clusters and tests apply it directly.
const Schema = `
	CREATE TABLE IF NOT EXISTS timelock__core_timelock(
		id SERIAL NOT NULL PRIMARY KEY,

		address TEXT NOT NULL,
		bump INTEGER NOT NULL,

		receiver TEXT NOT NULL,
		initializer TEXT NOT NULL,
		destination TEXT NOT NULL,
		custody TEXT NOT NULL,

		unlock_at BIGINT NOT NULL,
		amount BIGINT NOT NULL,

		state INTEGER NOT NULL,

		slot BIGINT NOT NULL,

		last_updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

		CONSTRAINT timelock__core_timelock__uniq__address UNIQUE (address),
		CONSTRAINT timelock__core_timelock__uniq__receiver UNIQUE (receiver)
	);
`
