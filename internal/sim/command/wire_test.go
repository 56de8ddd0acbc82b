package command

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"veinlocate.ai/internal/protocol"
	"veinlocate.ai/internal/sim/grid"
)

func TestWire_Found(t *testing.T) {
	env := testEnv(t)
	resp, errMsg := env.Exec(grid.Vec3{}, Request{}).Wire("q1")
	require.Nil(t, errMsg)
	require.Equal(t, protocol.TypeLocateResult, resp.Type)
	require.Equal(t, "q1", resp.RequestID)
	require.True(t, resp.Found)
	require.NotNil(t, resp.Nearest)
	require.Equal(t, "mod:iron", resp.Nearest.Vein)
	require.Equal(t, [2]int{2, 0}, resp.Nearest.Cell)
	require.Len(t, resp.All, 2)
	require.NotEmpty(t, resp.Report)
}

func TestWire_Rejected(t *testing.T) {
	env := testEnv(t)
	_, errMsg := env.Exec(grid.Vec3{}, Request{VeinID: "mod:nope"}).Wire("q2")
	require.NotNil(t, errMsg)
	require.Equal(t, protocol.TypeError, errMsg.Type)
	require.Equal(t, protocol.ErrInvalidTarget, errMsg.Code)
	require.Equal(t, "q2", errMsg.RequestID)
}

func TestVeinsList(t *testing.T) {
	env := testEnv(t)
	list := VeinsList(env.Veins)
	require.Equal(t, env.Veins.Digest, list.Digest)
	require.Len(t, list.Veins, 2)
	require.Equal(t, "mod:gold", list.Veins[0].ID)
}

func TestFromWire(t *testing.T) {
	r := 4
	origin, req, err := FromWire(protocol.LocateReq{Pos: [3]float64{1.5, 64, -2}, Vein: " mod:iron ", Radius: &r})
	require.NoError(t, err)
	require.Equal(t, grid.Vec3{X: 1.5, Y: 64, Z: -2}, origin)
	require.Equal(t, Request{VeinID: "mod:iron", Radius: 4, RadiusSet: true}, req)

	_, req, err = FromWire(protocol.LocateReq{})
	require.NoError(t, err)
	require.False(t, req.RadiusSet)
}

func TestFromWire_RejectsOutOfRangeOrigin(t *testing.T) {
	for _, pos := range [][3]float64{
		{1e300, 0, 0},
		{0, 0, -grid.MaxCoord - 1},
		{0, math.Inf(1), 0},
		{math.NaN(), 0, 0},
	} {
		_, _, err := FromWire(protocol.LocateReq{Pos: pos})
		require.ErrorIs(t, err, grid.ErrBadCoord, "pos %v", pos)
	}
	_, _, err := FromWire(protocol.LocateReq{Pos: [3]float64{grid.MaxCoord, 0, -grid.MaxCoord}})
	require.NoError(t, err)
}
