// Package mempool implements unconfirmed-transaction admission, replace-by-fee,
// fee-tier block-template selection, and age-based eviction.
package mempool

import (
	"math/rand"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"supernova.dev/node/consensus"
	"supernova.dev/node/crypto"
	"supernova.dev/node/errs"
)

const (
	CodeDuplicateTransaction errs.Code = "DUPLICATE_TRANSACTION"
	CodeDoubleSpend          errs.Code = "DOUBLE_SPEND"
	CodeFeeOverflow          errs.Code = "FEE_OVERFLOW"
	CodeRBFFeeTooLow         errs.Code = "RBF_FEE_TOO_LOW"
	CodeRateLimited          errs.Code = "ADMISSION_RATE_LIMITED"
)

// minRBFFeeIncrease is the minimum additional fee (in base units) a
// replacement transaction must pay over the one it evicts, preventing a
// zero-cost resubmission loop from repeatedly bumping a transaction's
// position without actually compensating miners more.
const minRBFFeeIncrease = 1000

// Entry is one admitted, unconfirmed transaction.
type Entry struct {
	Txid     [32]byte
	Tx       *consensus.Tx
	Fee      uint64
	Weight   uint64
	AddedAt  time.Time
	Spends   []consensus.TxOutPoint
}

// Pool holds admitted transactions plus the indexes needed for O(1)
// duplicate and double-spend detection.
type Pool struct {
	entries map[[32]byte]*Entry
	spentBy map[consensus.TxOutPoint][32]byte
	limiter *rate.Limiter
	maxAge  time.Duration
}

// NewPool constructs an empty pool. admitPerSecond/burst bound the rate of
// Admit calls this pool will accept, guarding against a submission flood
// from a single noisy peer; maxAge is the default used by EvictExpired.
func NewPool(admitPerSecond float64, burst int, maxAge time.Duration) *Pool {
	return &Pool{
		entries: make(map[[32]byte]*Entry),
		spentBy: make(map[consensus.TxOutPoint][32]byte),
		limiter: rate.NewLimiter(rate.Limit(admitPerSecond), burst),
		maxAge:  maxAge,
	}
}

func (p *Pool) Len() int { return len(p.entries) }

func (p *Pool) Get(txid [32]byte) (*Entry, bool) {
	e, ok := p.entries[txid]
	return e, ok
}

// Admit validates and inserts tx. fee is the caller-computed fee (sum of
// input values minus sum of output values); weight is consensus.TxWeight's
// result. now is injected so eviction bookkeeping stays deterministic for
// tests.
func (p *Pool) Admit(cp crypto.CryptoProvider, tx *consensus.Tx, fee, weight uint64, now time.Time) (*Entry, error) {
	if !p.limiter.Allow() {
		return nil, errs.New(errs.KindTransaction, CodeRateLimited, "mempool admission rate limit exceeded")
	}

	txid := consensus.TxID(cp, tx)
	if _, exists := p.entries[txid]; exists {
		return nil, errs.New(errs.KindTransaction, CodeDuplicateTransaction, "transaction already in mempool")
	}

	spends := make([]consensus.TxOutPoint, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		op := consensus.TxOutPoint{TxID: in.PrevTxid, Vout: in.PrevVout}
		if conflictTxid, spent := p.spentBy[op]; spent {
			if replaced, err := p.tryReplaceByFee(conflictTxid, fee); err != nil || !replaced {
				return nil, errs.New(errs.KindTransaction, CodeDoubleSpend, "input already spent by a pooled transaction")
			}
		}
		spends = append(spends, op)
	}

	if fee > 0 && fee+weight < fee {
		return nil, errs.New(errs.KindTransaction, CodeFeeOverflow, "fee/weight overflow during admission accounting")
	}

	e := &Entry{Txid: txid, Tx: tx, Fee: fee, Weight: weight, AddedAt: now, Spends: spends}
	p.entries[txid] = e
	for _, op := range spends {
		p.spentBy[op] = txid
	}
	return e, nil
}

// tryReplaceByFee evicts conflictTxid if newFee beats its fee by at least
// minRBFFeeIncrease. Returns (true, nil) if the conflicting entry was
// evicted and the caller should proceed with admission.
func (p *Pool) tryReplaceByFee(conflictTxid [32]byte, newFee uint64) (bool, error) {
	conflict, ok := p.entries[conflictTxid]
	if !ok {
		return true, nil // already gone; treat as no conflict
	}
	if newFee < conflict.Fee+minRBFFeeIncrease {
		return false, errs.New(errs.KindTransaction, CodeRBFFeeTooLow, "replacement fee does not exceed minimum rbf increase")
	}
	p.evict(conflictTxid)
	return true, nil
}

func (p *Pool) evict(txid [32]byte) {
	e, ok := p.entries[txid]
	if !ok {
		return
	}
	for _, op := range e.Spends {
		delete(p.spentBy, op)
	}
	delete(p.entries, txid)
}

// EvictExpired drops every entry older than maxAge as of now, returning the
// evicted txids.
func (p *Pool) EvictExpired(now time.Time) [][32]byte {
	var expired [][32]byte
	for txid, e := range p.entries {
		if now.Sub(e.AddedAt) > p.maxAge {
			expired = append(expired, txid)
		}
	}
	for _, txid := range expired {
		p.evict(txid)
	}
	return expired
}

// feeRate is fee per weight unit, scaled to avoid float truncation to zero
// for small fees on heavy transactions.
func feeRate(e *Entry) uint64 {
	if e.Weight == 0 {
		return 0
	}
	return (e.Fee * 1000) / e.Weight
}

// SelectForBlock buckets entries into fee-rate tiers, shuffles each tier
// with a caller-seeded RNG (so block templates from the same mempool state
// aren't trivially fingerprintable by ordering alone), and greedily fills up
// to maxWeight, highest tier first.
func SelectForBlock(entries []*Entry, maxWeight uint64, seed int64) []*Entry {
	tiers := map[uint64][]*Entry{}
	for _, e := range entries {
		tier := feeRate(e) / 100 // coarsen into buckets of 100 units/weight
		tiers[tier] = append(tiers[tier], e)
	}

	tierKeys := make([]uint64, 0, len(tiers))
	for k := range tiers {
		tierKeys = append(tierKeys, k)
	}
	sort.Slice(tierKeys, func(i, j int) bool { return tierKeys[i] > tierKeys[j] })

	rng := rand.New(rand.NewSource(seed))
	var selected []*Entry
	var usedWeight uint64
	for _, k := range tierKeys {
		bucket := tiers[k]
		rng.Shuffle(len(bucket), func(i, j int) { bucket[i], bucket[j] = bucket[j], bucket[i] })
		for _, e := range bucket {
			if usedWeight+e.Weight > maxWeight {
				continue
			}
			selected = append(selected, e)
			usedWeight += e.Weight
		}
	}
	return selected
}
