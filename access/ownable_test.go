// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package access

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	owner    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	stranger = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func TestAuthorize(t *testing.T) {
	o := NewOwnable(owner)
	require.NoError(t, o.Authorize(owner))
	require.ErrorIs(t, o.Authorize(stranger), ErrUnauthorized)
	require.ErrorIs(t, o.Authorize(common.Address{}), ErrUnauthorized)

	require.ErrorIs(t, NewOwnable(common.Address{}).Authorize(common.Address{}), ErrUnauthorized)
}

func TestTransferOwnership(t *testing.T) {
	o := NewOwnable(owner)

	require.ErrorIs(t, o.TransferOwnership(stranger, stranger), ErrUnauthorized)
	require.Equal(t, owner, o.Owner())

	require.ErrorIs(t, o.TransferOwnership(owner, common.Address{}), ErrInvalidAddress)
	require.Equal(t, owner, o.Owner())

	require.NoError(t, o.TransferOwnership(owner, stranger))
	require.Equal(t, stranger, o.Owner())
	require.ErrorIs(t, o.Authorize(owner), ErrUnauthorized)
}

func TestPause(t *testing.T) {
	o := NewOwnable(owner)
	require.NoError(t, o.WhenNotPaused())

	require.ErrorIs(t, o.Pause(stranger), ErrUnauthorized)
	require.False(t, o.Paused())

	require.NoError(t, o.Pause(owner))
	require.ErrorIs(t, o.WhenNotPaused(), ErrPaused)
	require.ErrorIs(t, o.Pause(owner), ErrPaused)

	require.NoError(t, o.Unpause(owner))
	require.ErrorIs(t, o.Unpause(owner), ErrNotPaused)
	require.NoError(t, o.WhenNotPaused())
}
