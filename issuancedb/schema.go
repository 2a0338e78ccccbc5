package issuancedb

// Amounts are kept as decimal TEXT: go-sqlite3 refuses uint64 values with the high bit set.
// Times are unix milliseconds.
var (
	issuanceTable = `CREATE TABLE IF NOT EXISTS issuance (
		mint CHAR(44) PRIMARY KEY NOT NULL,
		owner CHAR(44) NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL DEFAULT '',
		decimals INTEGER NOT NULL,
		initialSupply TEXT NOT NULL,
		stage VARCHAR(20) NOT NULL,
		initTxSig CHAR(88) NOT NULL,
		supplyTxSig CHAR(88) NOT NULL DEFAULT '',
		createdAt INTEGER NOT NULL,
		updatedAt INTEGER NOT NULL,
		CONSTRAINT chk_decimals CHECK (decimals BETWEEN 0 AND 9),
		CONSTRAINT chk_stage CHECK (stage IN ('mint_pending', 'mint_initialized', 'supply_minted'))
	);
	CREATE INDEX IF NOT EXISTS idx_issuance_owner ON issuance (owner);
	CREATE INDEX IF NOT EXISTS idx_issuance_stage ON issuance (stage);`

	monitoredTxTable = `CREATE TABLE IF NOT EXISTS monitoredTx (
		signature CHAR(88) PRIMARY KEY NOT NULL,
		refMint CHAR(44) NOT NULL,
		kind VARCHAR(20) NOT NULL,
		status VARCHAR(10) NOT NULL,
		blockhash CHAR(44) NOT NULL DEFAULT '',
		slot INTEGER NOT NULL DEFAULT 0,
		err TEXT NOT NULL DEFAULT '',
		sentAt INTEGER NOT NULL,
		updatedAt INTEGER NOT NULL,
		CONSTRAINT chk_signature CHECK (signature != ''),
		CONSTRAINT chk_kind CHECK (kind IN ('init_mint', 'initial_supply', 'mint_more')),
		CONSTRAINT chk_status CHECK (status IN ('limbo', 'pending', 'confirmed', 'failed', 'timeout'))
	);
	CREATE INDEX IF NOT EXISTS idx_monitoredTx_refMint ON monitoredTx (refMint);
	CREATE INDEX IF NOT EXISTS idx_monitoredTx_status ON monitoredTx (status);`
)
