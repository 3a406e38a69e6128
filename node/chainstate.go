package node

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"supernova.dev/node/consensus"
	"supernova.dev/node/crypto"
)

const (
	chainStateDiskVersion = 1
	chainStateFileName    = "chainstate.json"

	// medianTimeWindow mirrors the ancestor window consensus.ApplyBlock needs for
	// median-past-timestamp and parent-linkage checks.
	medianTimeWindow = 11
)

type ChainState struct {
	HasTip           bool
	Height           uint64
	TipHash          [32]byte
	AlreadyGenerated uint64
	Utxos            map[consensus.TxOutPoint]consensus.UtxoEntry
	RecentHeaders    []consensus.BlockHeader
}

type ChainStateConnectSummary struct {
	BlockHeight      uint64
	BlockHash        [32]byte
	AlreadyGenerated uint64
	UtxoCount        uint64
}

type chainStateDisk struct {
	Version          uint32          `json:"version"`
	HasTip           bool            `json:"has_tip"`
	Height           uint64          `json:"height"`
	TipHash          string          `json:"tip_hash"`
	AlreadyGenerated uint64          `json:"already_generated"`
	Utxos            []utxoDiskEntry `json:"utxos"`
	RecentHeaders    []string        `json:"recent_headers"`
}

type utxoDiskEntry struct {
	Txid              string `json:"txid"`
	Vout              uint32 `json:"vout"`
	Value             uint64 `json:"value"`
	CovenantType      uint16 `json:"covenant_type"`
	CovenantData      string `json:"covenant_data"`
	CreationHeight    uint64 `json:"creation_height"`
	CreatedByCoinbase bool   `json:"created_by_coinbase"`
}

func NewChainState() *ChainState {
	return &ChainState{
		Utxos: make(map[consensus.TxOutPoint]consensus.UtxoEntry),
	}
}

func ChainStatePath(dataDir string) string {
	return filepath.Join(dataDir, chainStateFileName)
}

func LoadChainState(path string) (*ChainState, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewChainState(), nil
	}
	if err != nil {
		return nil, err
	}
	var disk chainStateDisk
	if err := json.Unmarshal(raw, &disk); err != nil {
		return nil, fmt.Errorf("decode chainstate: %w", err)
	}
	return chainStateFromDisk(disk)
}

func (s *ChainState) Save(path string) error {
	if s == nil {
		return errors.New("nil chainstate")
	}
	disk, err := stateToDisk(s)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chainstate: %w", err)
	}
	raw = append(raw, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return writeFileAtomic(path, raw, 0o600)
}

// ConnectBlock parses blockBytes, validates it against consensus rules using
// consensus.ApplyBlock, and on success advances the chain tip and UTXO set.
// expectedTarget is supplied by the caller (ordinarily the difficulty retargeting
// layer); prevTimestamps is accepted for API compatibility and is not read:
// ancestor timestamps come from the tracked RecentHeaders window.
func (s *ChainState) ConnectBlock(
	blockBytes []byte,
	expectedTarget *[32]byte,
	prevTimestamps []uint64,
	chainID [32]byte,
) (*ChainStateConnectSummary, error) {
	if s == nil {
		return nil, errors.New("nil chainstate")
	}
	if s.Utxos == nil {
		s.Utxos = make(map[consensus.TxOutPoint]consensus.UtxoEntry)
	}
	if expectedTarget == nil {
		return nil, fmt.Errorf("chainstate: expected_target required")
	}

	nextHeight, _, err := nextBlockContext(s)
	if err != nil {
		return nil, err
	}

	block, err := consensus.ParseBlockBytes(blockBytes)
	if err != nil {
		return nil, err
	}

	p := crypto.DevStdCryptoProvider{}
	ctx := consensus.BlockValidationContext{
		Height:          nextHeight,
		AncestorHeaders: s.RecentHeaders,
		ExpectedTarget:  *expectedTarget,
	}

	utxoWork := copyUtxoSet(s.Utxos)
	if err := consensus.ApplyBlock(p, chainID, &block, utxoWork, ctx); err != nil {
		return nil, err
	}

	blockHash, err := consensus.BlockHash(consensus.BlockHeaderBytes(block.Header))
	if err != nil {
		return nil, err
	}

	s.HasTip = true
	s.Height = nextHeight
	s.TipHash = blockHash
	s.Utxos = utxoWork
	if nextHeight != 0 {
		s.AlreadyGenerated, err = addUint64Chainstate(s.AlreadyGenerated, consensus.BlockSubsidy(nextHeight, s.AlreadyGenerated))
		if err != nil {
			return nil, err
		}
	}
	s.RecentHeaders = append(append([]consensus.BlockHeader{}, s.RecentHeaders...), block.Header)
	if len(s.RecentHeaders) > medianTimeWindow {
		s.RecentHeaders = s.RecentHeaders[len(s.RecentHeaders)-medianTimeWindow:]
	}

	return &ChainStateConnectSummary{
		BlockHeight:      nextHeight,
		BlockHash:        blockHash,
		AlreadyGenerated: s.AlreadyGenerated,
		UtxoCount:        uint64(len(s.Utxos)),
	}, nil
}

func addUint64Chainstate(a, b uint64) (uint64, error) {
	if b > (^uint64(0) - a) {
		return 0, fmt.Errorf("chainstate: already_generated overflow")
	}
	return a + b, nil
}

func nextBlockContext(s *ChainState) (uint64, *[32]byte, error) {
	if s == nil {
		return 0, nil, errors.New("nil chainstate")
	}
	if !s.HasTip {
		return 0, nil, nil
	}
	if s.Height == math.MaxUint64 {
		return 0, nil, errors.New("height overflow")
	}
	nextHeight := s.Height + 1
	prev := s.TipHash
	return nextHeight, &prev, nil
}

func copyUtxoSet(src map[consensus.TxOutPoint]consensus.UtxoEntry) map[consensus.TxOutPoint]consensus.UtxoEntry {
	out := make(map[consensus.TxOutPoint]consensus.UtxoEntry, len(src))
	for k, v := range src {
		out[k] = consensus.UtxoEntry{
			Output: consensus.TxOutput{
				Value:        v.Output.Value,
				CovenantType: v.Output.CovenantType,
				CovenantData: append([]byte(nil), v.Output.CovenantData...),
			},
			CreationHeight:    v.CreationHeight,
			CreatedByCoinbase: v.CreatedByCoinbase,
		}
	}
	return out
}

func stateToDisk(s *ChainState) (chainStateDisk, error) {
	if s == nil {
		return chainStateDisk{}, errors.New("nil chainstate")
	}
	utxos := make([]utxoDiskEntry, 0, len(s.Utxos))
	for op, entry := range s.Utxos {
		utxos = append(utxos, utxoDiskEntry{
			Txid:              hex.EncodeToString(op.TxID[:]),
			Vout:              op.Vout,
			Value:             entry.Output.Value,
			CovenantType:      entry.Output.CovenantType,
			CovenantData:      hex.EncodeToString(entry.Output.CovenantData),
			CreationHeight:    entry.CreationHeight,
			CreatedByCoinbase: entry.CreatedByCoinbase,
		})
	}
	sort.Slice(utxos, func(i, j int) bool {
		if utxos[i].Txid != utxos[j].Txid {
			return utxos[i].Txid < utxos[j].Txid
		}
		return utxos[i].Vout < utxos[j].Vout
	})

	headers := make([]string, 0, len(s.RecentHeaders))
	for _, h := range s.RecentHeaders {
		headers = append(headers, hex.EncodeToString(consensus.BlockHeaderBytes(h)))
	}

	return chainStateDisk{
		Version:          chainStateDiskVersion,
		HasTip:           s.HasTip,
		Height:           s.Height,
		TipHash:          hex.EncodeToString(s.TipHash[:]),
		AlreadyGenerated: s.AlreadyGenerated,
		Utxos:            utxos,
		RecentHeaders:    headers,
	}, nil
}

func chainStateFromDisk(disk chainStateDisk) (*ChainState, error) {
	if disk.Version != chainStateDiskVersion {
		return nil, fmt.Errorf("unsupported chainstate version: %d", disk.Version)
	}

	tipHash, err := parseHex32("tip_hash", disk.TipHash)
	if err != nil {
		return nil, err
	}
	utxos := make(map[consensus.TxOutPoint]consensus.UtxoEntry, len(disk.Utxos))
	for _, item := range disk.Utxos {
		txid, err := parseHex32("utxo.txid", item.Txid)
		if err != nil {
			return nil, err
		}
		covData, err := parseHex("utxo.covenant_data", item.CovenantData)
		if err != nil {
			return nil, err
		}
		op := consensus.TxOutPoint{
			TxID: txid,
			Vout: item.Vout,
		}
		if _, exists := utxos[op]; exists {
			return nil, fmt.Errorf("duplicate utxo outpoint: %s:%d", item.Txid, item.Vout)
		}
		utxos[op] = consensus.UtxoEntry{
			Output: consensus.TxOutput{
				Value:        item.Value,
				CovenantType: item.CovenantType,
				CovenantData: covData,
			},
			CreationHeight:    item.CreationHeight,
			CreatedByCoinbase: item.CreatedByCoinbase,
		}
	}

	headers := make([]consensus.BlockHeader, 0, len(disk.RecentHeaders))
	for _, hh := range disk.RecentHeaders {
		raw, err := parseHex("recent_header", hh)
		if err != nil {
			return nil, err
		}
		h, err := consensus.ParseBlockHeaderBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("recent_header: %w", err)
		}
		headers = append(headers, h)
	}

	return &ChainState{
		HasTip:           disk.HasTip,
		Height:           disk.Height,
		TipHash:          tipHash,
		AlreadyGenerated: disk.AlreadyGenerated,
		Utxos:            utxos,
		RecentHeaders:    headers,
	}, nil
}

func parseHex(name, value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed)%2 != 0 {
		return nil, fmt.Errorf("%s: odd-length hex", name)
	}
	out, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func parseHex32(name, value string) ([32]byte, error) {
	var out [32]byte
	raw, err := parseHex(name, value)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("%s: expected 32 bytes, got %d", name, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
