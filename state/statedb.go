// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state models the slice of EVM chain state the jackpot contracts
// touch: native balances, storage slots and emitted logs.
package state

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	ethtypes "github.com/luxfi/geth/core/types"
	"github.com/zeebo/blake3"
)

// StateDB is the chain state a contract reads and writes during a transaction.
type StateDB interface {
	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key, value common.Hash) common.Hash

	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int
	SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int

	AddLog(log *ethtypes.Log)
	Logs() []*ethtypes.Log

	Snapshot() int
	RevertToSnapshot(id int)
}

// MemoryDB is an in-memory StateDB with a snapshot journal.
type MemoryDB struct {
	storage  map[common.Address]map[common.Hash]common.Hash
	balances map[common.Address]*uint256.Int
	logs     []*ethtypes.Log

	snapshots []snapshot

	mu sync.Mutex
}

type snapshot struct {
	storage  map[common.Address]map[common.Hash]common.Hash
	balances map[common.Address]*uint256.Int
	logs     int
}

var _ StateDB = (*MemoryDB)(nil)

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
		balances: make(map[common.Address]*uint256.Int),
		logs:     make([]*ethtypes.Log, 0),
	}
}

func (m *MemoryDB) GetState(addr common.Address, key common.Hash) common.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage[addr] == nil {
		return common.Hash{}
	}
	return m.storage[addr][key]
}

func (m *MemoryDB) SetState(addr common.Address, key, value common.Hash) common.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage[addr] == nil {
		m.storage[addr] = make(map[common.Hash]common.Hash)
	}
	prev := m.storage[addr][key]
	m.storage[addr][key] = value
	return prev
}

func (m *MemoryDB) GetBalance(addr common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bal, ok := m.balances[addr]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

// AddBalance credits addr and returns the previous balance.
func (m *MemoryDB) AddBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.balanceLocked(addr)
	m.balances[addr] = new(uint256.Int).Add(&prev, amount)
	return prev
}

// SubBalance debits addr and returns the previous balance. Callers check
// funds first; an overdraft floors at zero rather than wrapping.
func (m *MemoryDB) SubBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.balanceLocked(addr)
	if amount.Gt(&prev) {
		m.balances[addr] = uint256.NewInt(0)
	} else {
		m.balances[addr] = new(uint256.Int).Sub(&prev, amount)
	}
	return prev
}

func (m *MemoryDB) balanceLocked(addr common.Address) uint256.Int {
	if bal, ok := m.balances[addr]; ok {
		return *bal.Clone()
	}
	return uint256.Int{}
}

func (m *MemoryDB) AddLog(log *ethtypes.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.Index = uint(len(m.logs))
	m.logs = append(m.logs, log)
}

func (m *MemoryDB) Logs() []*ethtypes.Log {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ethtypes.Log, len(m.logs))
	copy(out, m.logs)
	return out
}

// Snapshot records the current state and returns an id for RevertToSnapshot.
func (m *MemoryDB) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := snapshot{
		storage:  make(map[common.Address]map[common.Hash]common.Hash, len(m.storage)),
		balances: make(map[common.Address]*uint256.Int, len(m.balances)),
		logs:     len(m.logs),
	}
	for addr, slots := range m.storage {
		cp := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cp[k] = v
		}
		s.storage[addr] = cp
	}
	for addr, bal := range m.balances {
		s.balances[addr] = bal.Clone()
	}
	m.snapshots = append(m.snapshots, s)
	return len(m.snapshots) - 1
}

// RevertToSnapshot restores the state taken by Snapshot(id) and discards
// every later snapshot. Unknown ids are ignored.
func (m *MemoryDB) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	s := m.snapshots[id]
	m.storage = s.storage
	m.balances = s.balances
	m.logs = m.logs[:s.logs]
	m.snapshots = m.snapshots[:id]
}

// DiscardSnapshot drops snapshot id and every later one once a transaction commits.
func (m *MemoryDB) DiscardSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	m.snapshots = m.snapshots[:id]
}

// StorageKey derives a storage slot from a prefix and an identifier.
func StorageKey(prefix []byte, id []byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	h.Write(id)
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

// HashFromUint encodes v as a big-endian storage word.
func HashFromUint(v *uint256.Int) common.Hash {
	return common.Hash(v.Bytes32())
}

// UintFromHash decodes a storage word written by HashFromUint.
func UintFromHash(h common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes32(h[:])
}
