package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaAddresses = `
CREATE TABLE IF NOT EXISTS addresses (
    address_id TEXT PRIMARY KEY,
    line1 TEXT NOT NULL,
    city TEXT NOT NULL,
    postcode TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL
);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    policy_id TEXT PRIMARY KEY,
    inception_date TIMESTAMP NOT NULL,
    expiry_date TIMESTAMP NOT NULL,
    product TEXT NOT NULL,
    region TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policies_product ON policies(product);
`

const schemaClaimParties = `
CREATE TABLE IF NOT EXISTS claim_parties (
    claimant_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email_hash TEXT NOT NULL,
    phone_hash TEXT NOT NULL,
    address_id TEXT NOT NULL,
    bank_account_hash TEXT NOT NULL,
    device_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claim_parties_address ON claim_parties(address_id);
CREATE INDEX IF NOT EXISTS idx_claim_parties_bank ON claim_parties(bank_account_hash);
CREATE INDEX IF NOT EXISTS idx_claim_parties_device ON claim_parties(device_id);
`

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    claim_id TEXT PRIMARY KEY,
    policy_id TEXT NOT NULL,
    claimant_id TEXT NOT NULL,
    loss_date TIMESTAMP NOT NULL,
    report_date TIMESTAMP NOT NULL,
    loss_type TEXT NOT NULL,
    amount REAL NOT NULL,
    status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_policy ON claims(policy_id);
CREATE INDEX IF NOT EXISTS idx_claims_claimant ON claims(claimant_id);
CREATE INDEX IF NOT EXISTS idx_claims_loss_date ON claims(loss_date);
`

// One row per scored claim; recomputation replaces the row wholesale.
const schemaScores = `
CREATE TABLE IF NOT EXISTS scores (
    claim_id TEXT PRIMARY KEY,
    rule_score REAL NOT NULL,
    ml_score REAL NOT NULL,
    graph_score REAL NOT NULL,
    risk_score REAL NOT NULL,
    reasons_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scores_risk ON scores(risk_score);
`

// AllSchemas returns all schema statements in dependency order.
func AllSchemas() []string {
	return []string{
		schemaAddresses,
		schemaPolicies,
		schemaClaimParties,
		schemaClaims,
		schemaScores,
	}
}
