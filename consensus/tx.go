package consensus

import "math/big"

const (
	CORE_P2PK            = 0x0000
	CORE_TIMELOCK_V1     = 0x0001
	CORE_ANCHOR          = 0x0002
	CORE_HTLC_V1         = 0x0100
	CORE_VAULT_V1        = 0x0101
	CORE_HTLC_V2         = 0x0102
	CORE_RESERVED_FUTURE = 0x00ff

	MAX_BLOCK_WEIGHT           = 4_000_000
	MAX_ANCHOR_BYTES_PER_BLOCK = 131_072
	MAX_ANCHOR_PAYLOAD_SIZE    = 65_536
	WINDOW_SIZE                = 2_016
	TARGET_BLOCK_INTERVAL      = 600
	MAX_FUTURE_DRIFT           = 7_200
	COINBASE_MATURITY          = 100
	BASE_UNITS_PER_SNV         = 100_000_000
	HALVING_INTERVAL_BLOCKS    = 210_000
	INITIAL_SUBSIDY            = 50 * BASE_UNITS_PER_SNV
	MAX_HALVINGS               = 64
	VERIFY_COST_ML_DSA         = 8
	VERIFY_COST_SLH_DSA        = 64

	MAX_TX_INPUTS            = 1_024
	MAX_TX_OUTPUTS           = 1_024
	MAX_WITNESS_ITEMS        = 1_024
	MAX_WITNESS_BYTES_PER_TX = 100_000

	// MAX_RELAY_MSG_BYTES bounds a single p2p wire payload. Set above
	// MAX_BLOCK_WEIGHT to leave headroom for a full block's witness data,
	// which isn't weight-discounted on the wire.
	MAX_RELAY_MSG_BYTES = 8_000_000

	SUITE_ID_SENTINEL     = 0x00
	SUITE_ID_ML_DSA       = 0x01
	SUITE_ID_SLH_DSA      = 0x02
	ML_DSA_PUBKEY_BYTES   = 2592
	ML_DSA_SIG_BYTES      = 4_627
	SLH_DSA_PUBKEY_BYTES  = 64
	SLH_DSA_SIG_MAX_BYTES = 49_856

	TIMELOCK_MODE_HEIGHT    = 0x00
	TIMELOCK_MODE_TIMESTAMP = 0x01
)

const (
	TX_VERSION_V2 = 2

	TX_NONCE_ZERO            = 0
	TX_MAX_SEQUENCE          = 0x7fffffff
	TX_COINBASE_PREVOUT_VOUT = ^uint32(0)
	TX_ERR_NONCE_REPLAY      = "TX_ERR_NONCE_REPLAY"
	TX_ERR_TX_NONCE_INVALID  = "TX_ERR_TX_NONCE_INVALID"
	TX_ERR_SEQUENCE_INVALID  = "TX_ERR_SEQUENCE_INVALID"
	TX_ERR_COINBASE_IMMATURE = "TX_ERR_COINBASE_IMMATURE"
	TX_ERR_WITNESS_OVERFLOW  = "TX_ERR_WITNESS_OVERFLOW"
	TX_ERR_MISSING_UTXO      = "TX_ERR_MISSING_UTXO"
)

var MAX_TARGET = [32]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

var maxTargetBig = new(big.Int).SetBytes(MAX_TARGET[:])

var targetBlockIntervalBig = big.NewInt(TARGET_BLOCK_INTERVAL * WINDOW_SIZE)

type BlockHeader struct {
	Version       uint32
	PrevBlockHash [32]byte
	MerkleRoot    [32]byte
	Timestamp     uint64
	Target        [32]byte
	Nonce         uint64
}

type Block struct {
	Header       BlockHeader
	Transactions []Tx
}

// BlockValidationContext captures chain and validation settings used by ApplyBlock.
// AncestorHeaders must be ordered from oldest to newest and include the parent block
// of Header as the last entry when available. ExpectedTarget is computed by the
// caller and passed in; ApplyBlock compares Header.Target against it and does not
// recompute it.
type BlockValidationContext struct {
	Height           uint64
	AncestorHeaders  []BlockHeader
	ExpectedTarget   [32]byte
	LocalTime        uint64
	LocalTimeSet     bool
	SuiteIDSLHActive bool
	HTLCV2Active     bool
}

const (
	BLOCK_ERR_PARSE                 = "BLOCK_ERR_PARSE"
	BLOCK_ERR_LINKAGE_INVALID       = "BLOCK_ERR_LINKAGE_INVALID"
	BLOCK_ERR_POW_INVALID           = "BLOCK_ERR_POW_INVALID"
	BLOCK_ERR_TARGET_INVALID        = "BLOCK_ERR_TARGET_INVALID"
	BLOCK_ERR_MERKLE_INVALID        = "BLOCK_ERR_MERKLE_INVALID"
	BLOCK_ERR_WEIGHT_EXCEEDED       = "BLOCK_ERR_WEIGHT_EXCEEDED"
	BLOCK_ERR_COINBASE_INVALID      = "BLOCK_ERR_COINBASE_INVALID"
	BLOCK_ERR_SUBSIDY_EXCEEDED      = "BLOCK_ERR_SUBSIDY_EXCEEDED"
	BLOCK_ERR_TIMESTAMP_OLD         = "BLOCK_ERR_TIMESTAMP_OLD"
	BLOCK_ERR_TIMESTAMP_FUTURE      = "BLOCK_ERR_TIMESTAMP_FUTURE"
	BLOCK_ERR_ANCHOR_BYTES_EXCEEDED = "BLOCK_ERR_ANCHOR_BYTES_EXCEEDED"
	BLOCK_ERR_COMPLEXITY_EXCEEDED   = "BLOCK_ERR_COMPLEXITY_EXCEEDED"
	BLOCK_ERR_MANIPULATION_DETECTED = "BLOCK_ERR_MANIPULATION_DETECTED"
)

// MAX_VALIDATION_OPS bounds the per-block sum of each transaction's
// complexity score (inputs + outputs + inputs*outputs + scripts_size/10),
// rejecting a block before the expensive per-tx validation loop runs instead
// of after — a block packed with maximal-input/output transactions costs
// O(n*m) validation work per tx even though its weight alone looks cheap.
const MAX_VALIDATION_OPS = 1_000_000

type blockWeightError struct {
	code string
}

func (e blockWeightError) Error() string { return e.code }

type Tx struct {
	// Version MUST be TX_VERSION_V2.
	Version uint32

	TxNonce  uint64
	Inputs   []TxInput
	Outputs  []TxOutput
	Locktime uint32

	Witness WitnessSection
}

type TxOutPoint struct {
	TxID [32]byte
	Vout uint32
}

type TxInput struct {
	PrevTxid  [32]byte
	PrevVout  uint32
	ScriptSig []byte
	Sequence  uint32
}

type TxOutput struct {
	Value        uint64
	CovenantType uint16
	CovenantData []byte
}

type UtxoEntry struct {
	Output            TxOutput
	CreationHeight    uint64
	CreatedByCoinbase bool
}

type WitnessSection struct {
	Witnesses []WitnessItem
}

type WitnessItem struct {
	SuiteID   byte
	Pubkey    []byte
	Signature []byte
}
