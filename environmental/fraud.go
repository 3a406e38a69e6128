package environmental

import (
	"math"
	"time"

	"supernova.dev/node/errs"
)

const (
	CodeRapidSubmission    errs.Code = "RAPID_SUBMISSION"
	CodeImpossibleEfficiency errs.Code = "IMPOSSIBLE_EFFICIENCY"
	CodeRECDuplication     errs.Code = "REC_DUPLICATION"
	CodeStatisticalOutlier errs.Code = "STATISTICAL_OUTLIER"
)

// fraud-detector tunables, named after the quantities they bound.
const (
	zScoreThreshold       = 3.0
	zScoreWindow          = 24 * time.Hour
	zScoreMinSamples      = 100
	maxSubmissionsPerHour = 10
	maxHashrateWattRatio  = 200.0 // H/s per watt; above this is physically implausible
)

// FraudDetector flags attestations that look manipulated before they're
// allowed to influence Quorum or an oracle's reputation.
type FraudDetector struct {
	ledger       *Ledger
	reputation   map[string]float64 // oracle_id -> reputation in [0,1]
}

func NewFraudDetector(ledger *Ledger) *FraudDetector {
	return &FraudDetector{ledger: ledger, reputation: make(map[string]float64)}
}

func (f *FraudDetector) Reputation(oracleID string) float64 {
	if r, ok := f.reputation[oracleID]; ok {
		return r
	}
	return 1.0 // new oracles start fully trusted; decay only on observed misbehavior
}

// decayStep is how much reputation an oracle loses per detected fraud
// signal; reputation never drops below zero.
const decayStep = 0.2

func (f *FraudDetector) penalize(oracleID string) {
	f.reputation[oracleID] = math.Max(0, f.Reputation(oracleID)-decayStep)
}

// CheckRapidSubmission rejects an oracle submitting more than
// maxSubmissionsPerHour attestations in the trailing hour — a symptom of a
// compromised or automated-spam oracle key.
func (f *FraudDetector) CheckRapidSubmission(oracleID string, now time.Time) error {
	recent, err := f.ledger.RecentByOracle(oracleID, now.Add(-time.Hour))
	if err != nil {
		return err
	}
	if len(recent) > maxSubmissionsPerHour {
		f.penalize(oracleID)
		return errs.New(errs.KindEnvironmental, CodeRapidSubmission, "oracle exceeded max submissions per hour")
	}
	return nil
}

// CheckImpossibleEfficiency rejects an attestation claiming more hashrate
// per watt than is physically achievable with known hardware, a tell for a
// fabricated attestation designed to inflate a region's apparent renewable
// efficiency bonus.
func (f *FraudDetector) CheckImpossibleEfficiency(a Attestation, reportedHashrate float64) error {
	if a.HashrateWatts <= 0 {
		return nil
	}
	ratio := reportedHashrate / a.HashrateWatts
	if ratio > maxHashrateWattRatio {
		f.penalize(a.OracleID)
		return errs.New(errs.KindEnvironmental, CodeImpossibleEfficiency, "reported hashrate/watt ratio exceeds physical plausibility")
	}
	return nil
}

// CheckRECDuplication rejects a submission whose renewable-percentage and
// carbon-intensity pair exactly matches another oracle's submission for the
// same region/epoch — a sign of copy-pasted renewable-energy-certificate
// claims rather than an independently measured attestation.
func (f *FraudDetector) CheckRECDuplication(a Attestation) error {
	peers, err := f.ledger.ForRegionEpoch(a.Region, a.Epoch)
	if err != nil {
		return err
	}
	for _, p := range peers {
		if p.OracleID == a.OracleID {
			continue
		}
		if p.RenewablePct == a.RenewablePct && p.CarbonIntensity == a.CarbonIntensity {
			f.penalize(a.OracleID)
			return errs.New(errs.KindEnvironmental, CodeRECDuplication, "renewable/carbon figures exactly duplicate another oracle's submission")
		}
	}
	return nil
}

// CheckStatisticalOutlier computes a z-score for a.RenewablePct against the
// oracle's own trailing zScoreWindow history (once at least zScoreMinSamples
// points exist) and flags a reading more than zScoreThreshold standard
// deviations from that oracle's own mean — a sudden implausible jump rather
// than the gradual drift real measurements show.
func (f *FraudDetector) CheckStatisticalOutlier(a Attestation, now time.Time) error {
	history, err := f.ledger.RecentByOracle(a.OracleID, now.Add(-zScoreWindow))
	if err != nil {
		return err
	}
	if len(history) < zScoreMinSamples {
		return nil
	}

	var sum float64
	for _, h := range history {
		sum += h.RenewablePct
	}
	mean := sum / float64(len(history))

	var variance float64
	for _, h := range history {
		d := h.RenewablePct - mean
		variance += d * d
	}
	variance /= float64(len(history))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return nil
	}

	z := (a.RenewablePct - mean) / stddev
	if math.Abs(z) > zScoreThreshold {
		f.penalize(a.OracleID)
		return errs.New(errs.KindEnvironmental, CodeStatisticalOutlier, "renewable percentage is a statistical outlier against the oracle's own history")
	}
	return nil
}
