// Package environmental implements the renewable-energy attestation oracle:
// multi-oracle submission, stake-weighted quorum aggregation per
// region/epoch, and a fraud detector guarding against manipulated
// attestations feeding the mining-reward environmental bonus.
package environmental

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"supernova.dev/node/errs"
)

const (
	CodeLedgerOpen   errs.Code = "LEDGER_OPEN_FAILED"
	CodeLedgerSchema errs.Code = "LEDGER_SCHEMA_FAILED"
	CodeLedgerWrite  errs.Code = "LEDGER_WRITE_FAILED"
	CodeLedgerQuery  errs.Code = "LEDGER_QUERY_FAILED"
)

// Attestation is one oracle's signed claim about a region's energy mix for
// an epoch.
type Attestation struct {
	OracleID        string
	Region          string
	Epoch           uint64
	StakeWeight     uint64 // the submitting oracle's consensus stake, for quorum weighting
	RenewablePct    float64
	HashrateWatts   float64 // reported power draw backing the region's hashrate, for the efficiency check
	CarbonIntensity float64 // grams CO2 per kWh
	SubmittedAt     time.Time
}

// Ledger persists attestations in SQLite, indexed by region/epoch and by
// oracle/submission time. Its queries return plain rows; the quorum and
// fraud-detection statistics (means, variance) are computed in Go over them.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if absent) a SQLite-backed attestation ledger at
// path. Use ":memory:" for tests.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.KindEnvironmental, CodeLedgerOpen, err, "opening attestation ledger")
	}
	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS attestations (
	oracle_id        TEXT NOT NULL,
	region           TEXT NOT NULL,
	epoch            INTEGER NOT NULL,
	stake_weight     INTEGER NOT NULL,
	renewable_pct    REAL NOT NULL,
	hashrate_watts   REAL NOT NULL,
	carbon_intensity REAL NOT NULL,
	submitted_at     INTEGER NOT NULL,
	PRIMARY KEY (oracle_id, region, epoch)
);
CREATE INDEX IF NOT EXISTS idx_attest_region_epoch ON attestations(region, epoch);
CREATE INDEX IF NOT EXISTS idx_attest_oracle_time ON attestations(oracle_id, submitted_at);
`
	if _, err := l.db.Exec(schema); err != nil {
		return errs.Wrap(errs.KindEnvironmental, CodeLedgerSchema, err, "applying ledger schema")
	}
	return nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// Submit records or replaces one oracle's attestation for a region/epoch.
func (l *Ledger) Submit(a Attestation) error {
	const q = `
INSERT INTO attestations (oracle_id, region, epoch, stake_weight, renewable_pct, hashrate_watts, carbon_intensity, submitted_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(oracle_id, region, epoch) DO UPDATE SET
	stake_weight = excluded.stake_weight,
	renewable_pct = excluded.renewable_pct,
	hashrate_watts = excluded.hashrate_watts,
	carbon_intensity = excluded.carbon_intensity,
	submitted_at = excluded.submitted_at
`
	_, err := l.db.Exec(q, a.OracleID, a.Region, a.Epoch, a.StakeWeight, a.RenewablePct, a.HashrateWatts, a.CarbonIntensity, a.SubmittedAt.Unix())
	if err != nil {
		return errs.Wrap(errs.KindEnvironmental, CodeLedgerWrite, err, "submitting attestation")
	}
	return nil
}

// ForRegionEpoch returns every attestation recorded for a region/epoch pair.
func (l *Ledger) ForRegionEpoch(region string, epoch uint64) ([]Attestation, error) {
	rows, err := l.db.Query(`SELECT oracle_id, region, epoch, stake_weight, renewable_pct, hashrate_watts, carbon_intensity, submitted_at FROM attestations WHERE region = ? AND epoch = ?`, region, epoch)
	if err != nil {
		return nil, errs.Wrap(errs.KindEnvironmental, CodeLedgerQuery, err, "querying region/epoch attestations")
	}
	defer rows.Close()

	var out []Attestation
	for rows.Next() {
		var a Attestation
		var submittedAt int64
		if err := rows.Scan(&a.OracleID, &a.Region, &a.Epoch, &a.StakeWeight, &a.RenewablePct, &a.HashrateWatts, &a.CarbonIntensity, &submittedAt); err != nil {
			return nil, errs.Wrap(errs.KindEnvironmental, CodeLedgerQuery, err, "scanning attestation row")
		}
		a.SubmittedAt = time.Unix(submittedAt, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentByOracle returns an oracle's attestations submitted at or after
// since, used by the fraud detector's rapid-submission and z-score checks.
func (l *Ledger) RecentByOracle(oracleID string, since time.Time) ([]Attestation, error) {
	rows, err := l.db.Query(`SELECT oracle_id, region, epoch, stake_weight, renewable_pct, hashrate_watts, carbon_intensity, submitted_at FROM attestations WHERE oracle_id = ? AND submitted_at >= ? ORDER BY submitted_at ASC`, oracleID, since.Unix())
	if err != nil {
		return nil, errs.Wrap(errs.KindEnvironmental, CodeLedgerQuery, err, "querying recent oracle attestations")
	}
	defer rows.Close()

	var out []Attestation
	for rows.Next() {
		var a Attestation
		var submittedAt int64
		if err := rows.Scan(&a.OracleID, &a.Region, &a.Epoch, &a.StakeWeight, &a.RenewablePct, &a.HashrateWatts, &a.CarbonIntensity, &submittedAt); err != nil {
			return nil, errs.Wrap(errs.KindEnvironmental, CodeLedgerQuery, err, "scanning attestation row")
		}
		a.SubmittedAt = time.Unix(submittedAt, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func quorumError(detail string) error {
	return errs.New(errs.KindEnvironmental, "QUORUM_NOT_REACHED", detail)
}

// Quorum aggregates a region/epoch's attestations into a single stake-
// weighted renewable percentage, requiring at least two-thirds of total
// submitted stake to agree within tolerancePct of the weighted mean before
// the result is trusted (spec's stake-weighted quorum requirement).
func Quorum(attestations []Attestation, tolerancePct float64) (weightedRenewablePct float64, err error) {
	var totalStake uint64
	for _, a := range attestations {
		totalStake += a.StakeWeight
	}
	if totalStake == 0 {
		return 0, quorumError("no stake-weighted attestations submitted")
	}

	var weightedSum float64
	for _, a := range attestations {
		weightedSum += a.RenewablePct * float64(a.StakeWeight)
	}
	mean := weightedSum / float64(totalStake)

	var agreeingStake uint64
	for _, a := range attestations {
		if absFloat(a.RenewablePct-mean) <= tolerancePct {
			agreeingStake += a.StakeWeight
		}
	}
	if agreeingStake*3 < totalStake*2 {
		return 0, quorumError(fmt.Sprintf("only %d/%d stake agrees within tolerance", agreeingStake, totalStake))
	}
	return mean, nil
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
