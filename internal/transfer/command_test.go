package transfer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64      { return &v }
func float64p(v float64) *float64 { return &v }

func TestParseCommandVariants(t *testing.T) {
	cmd, err := ParseCommand("approve", ActionPayload{
		Note:  "ok",
		Items: []ActionItemPayload{{ItemID: 1, ApprovedQty: int64p(5)}},
	})
	require.NoError(t, err)
	approve, ok := cmd.(ApproveCommand)
	require.True(t, ok)
	require.Equal(t, "approve", approve.Action())
	require.Equal(t, int64(5), approve.Items[0].ApprovedQty)

	cmd, err = ParseCommand("prepare", ActionPayload{
		Items: []ActionItemPayload{{ItemID: 1, DispensedQty: int64p(5), UnitPrice: float64p(2.5)}},
	})
	require.NoError(t, err)
	prepare, ok := cmd.(PrepareCommand)
	require.True(t, ok)
	require.InDelta(t, 2.5, prepare.Items[0].UnitPrice, 0.0001)

	cmd, err = ParseCommand("receive", ActionPayload{
		Items: []ActionItemPayload{{ItemID: 1, ReceivedQty: int64p(5)}},
	})
	require.NoError(t, err)
	_, ok = cmd.(ReceiveCommand)
	require.True(t, ok)

	cmd, err = ParseCommand("cancel", ActionPayload{Note: "withdrawn"})
	require.NoError(t, err)
	cancel, ok := cmd.(CancelCommand)
	require.True(t, ok)
	require.Equal(t, "withdrawn", cancel.Note)
}

func TestParseCommandRejectAlias(t *testing.T) {
	cmd, err := ParseCommand("reject", ActionPayload{Note: "not approved"})
	require.NoError(t, err)
	cancel, ok := cmd.(CancelCommand)
	require.True(t, ok)
	require.Equal(t, "not approved", cancel.Note)
}

func TestParseCommandUnknownAction(t *testing.T) {
	_, err := ParseCommand("archive", ActionPayload{})
	require.ErrorIs(t, err, ErrInvalidAction)
}

func TestParseCommandMissingFields(t *testing.T) {
	_, err := ParseCommand("approve", ActionPayload{Items: []ActionItemPayload{{ItemID: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = ParseCommand("prepare", ActionPayload{Items: []ActionItemPayload{{ItemID: 1, DispensedQty: int64p(5)}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = ParseCommand("receive", ActionPayload{Items: []ActionItemPayload{{ReceivedQty: int64p(5)}}})
	require.ErrorIs(t, err, ErrValidation)
}
