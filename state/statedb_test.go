// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	ethtypes "github.com/luxfi/geth/core/types"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
)

func TestBalances(t *testing.T) {
	db := NewMemoryDB()
	require.True(t, db.GetBalance(alice).IsZero())

	prev := db.AddBalance(alice, uint256.NewInt(100), tracing.BalanceChangeTransfer)
	require.True(t, prev.IsZero())
	require.Equal(t, uint256.NewInt(100), db.GetBalance(alice))

	prev = db.SubBalance(alice, uint256.NewInt(30), tracing.BalanceChangeTransfer)
	require.Equal(t, uint64(100), prev.Uint64())
	require.Equal(t, uint256.NewInt(70), db.GetBalance(alice))

	// reads are copies
	bal := db.GetBalance(alice)
	bal.SetUint64(1)
	require.Equal(t, uint256.NewInt(70), db.GetBalance(alice))

	db.SubBalance(bob, uint256.NewInt(5), tracing.BalanceChangeTransfer)
	require.True(t, db.GetBalance(bob).IsZero())
}

func TestStorage(t *testing.T) {
	db := NewMemoryDB()
	key := StorageKey([]byte("vault.halted"), alice.Bytes())
	require.Equal(t, common.Hash{}, db.GetState(alice, key))

	value := HashFromUint(uint256.NewInt(42))
	require.Equal(t, common.Hash{}, db.SetState(alice, key, value))
	require.Equal(t, value, db.GetState(alice, key))
	require.Equal(t, uint256.NewInt(42), UintFromHash(db.GetState(alice, key)))
	require.Equal(t, common.Hash{}, db.GetState(bob, key))
}

func TestStorageKeyDistinct(t *testing.T) {
	a := StorageKey([]byte("a"), []byte("b"))
	require.Equal(t, a, StorageKey([]byte("a"), []byte("b")))
	require.NotEqual(t, a, StorageKey([]byte("a"), []byte("c")))
	require.NotEqual(t, common.Hash{}, a)
}

func TestSnapshotRevert(t *testing.T) {
	db := NewMemoryDB()
	key := common.HexToHash("0x01")
	db.AddBalance(alice, uint256.NewInt(10), tracing.BalanceChangeTransfer)
	db.SetState(alice, key, common.HexToHash("0xaa"))
	db.AddLog(&ethtypes.Log{Address: alice})

	id := db.Snapshot()
	db.AddBalance(alice, uint256.NewInt(5), tracing.BalanceChangeTransfer)
	db.AddBalance(bob, uint256.NewInt(7), tracing.BalanceChangeTransfer)
	db.SetState(alice, key, common.HexToHash("0xbb"))
	db.AddLog(&ethtypes.Log{Address: bob})
	require.Len(t, db.Logs(), 2)

	db.RevertToSnapshot(id)
	require.Equal(t, uint256.NewInt(10), db.GetBalance(alice))
	require.True(t, db.GetBalance(bob).IsZero())
	require.Equal(t, common.HexToHash("0xaa"), db.GetState(alice, key))
	require.Len(t, db.Logs(), 1)

	// a committed snapshot keeps the writes
	id = db.Snapshot()
	db.AddBalance(alice, uint256.NewInt(1), tracing.BalanceChangeTransfer)
	db.DiscardSnapshot(id)
	db.RevertToSnapshot(id)
	require.Equal(t, uint256.NewInt(11), db.GetBalance(alice))
}

func TestLogIndex(t *testing.T) {
	db := NewMemoryDB()
	db.AddLog(&ethtypes.Log{})
	db.AddLog(&ethtypes.Log{})
	logs := db.Logs()
	require.Equal(t, uint(0), logs[0].Index)
	require.Equal(t, uint(1), logs[1].Index)
}
