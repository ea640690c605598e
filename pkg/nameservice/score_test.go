package nameservice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

func TestStaticScoreMinimum(t *testing.T) {
	s, err := StaticScore(PowerSourceMin, MobilityMin, AvailabilityMin, NodeConnectionMin)
	require.NoError(t, err)
	assert.Equal(t, uint32(7987), s)
	assert.Equal(t, uint32(StaticScoreMin), s)

	s, err = StaticScore(PowerSourceMax, MobilityMax, AvailabilityMax, NodeConnectionMax)
	require.NoError(t, err)
	assert.Equal(t, uint32(64396), s)
}

func TestStaticScoreBounds(t *testing.T) {
	valid := [4]int{PowerSourceMin, MobilityMin, AvailabilityMin, NodeConnectionMin}
	bounds := [4][2]int{
		{PowerSourceMin, PowerSourceMax},
		{MobilityMin, MobilityMax},
		{AvailabilityMin, AvailabilityMax},
		{NodeConnectionMin, NodeConnectionMax},
	}
	for i, b := range bounds {
		for _, v := range []int{b[0] - 1, b[1] + 1} {
			args := valid
			args[i] = v
			_, err := StaticScore(args[0], args[1], args[2], args[3])
			if !nserrors.IsInvalidArgument(err) {
				t.Errorf("param %d = %d: expected invalid argument, got %v", i, v, err)
			}
		}
		args := valid
		args[i] = b[1]
		if _, err := StaticScore(args[0], args[1], args[2], args[3]); err != nil {
			t.Errorf("param %d = %d (max): unexpected error %v", i, b[1], err)
		}
	}
}

func TestDynamicScore(t *testing.T) {
	d, err := DynamicScore(1, 16, 2, 16, 2, 8)
	require.NoError(t, err)
	assert.Equal(t, uint32(1379), d)

	d, err = DynamicScore(16, 16, 16, 16, 8, 8)
	require.NoError(t, err)
	assert.Equal(t, uint32(DynamicScoreMax), d)

	d, err = DynamicScore(0, 16, 0, 16, 0, 8)
	require.NoError(t, err)
	assert.Zero(t, d)

	for _, args := range [][6]int{
		{17, 16, 0, 16, 0, 8},
		{-1, 16, 0, 16, 0, 8},
		{0, 0, 0, 16, 0, 8},
		{0, 16, 0, 16, 9, 8},
	} {
		_, err := DynamicScore(args[0], args[1], args[2], args[3], args[4], args[5])
		assert.True(t, nserrors.IsInvalidArgument(err), "%v", args)
	}
}

func TestPriority(t *testing.T) {
	p, err := Priority(StaticScoreMax, DynamicScoreMax)
	require.NoError(t, err)
	assert.Zero(t, p)

	p, err = Priority(StaticScoreMin, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(PriorityMax-StaticScoreMin), p)

	_, err = Priority(StaticScoreMax+1, 0)
	assert.True(t, nserrors.IsInvalidArgument(err))
	_, err = Priority(StaticScoreMin, DynamicScoreMax+1)
	assert.True(t, nserrors.IsInvalidArgument(err))
	_, err = Priority(StaticScoreMin-1, 0)
	assert.True(t, nserrors.IsInvalidArgument(err))
}

func TestAvailabilityFromUptime(t *testing.T) {
	assert.Equal(t, AvailabilityMin, AvailabilityFromUptime(time.Minute))
	assert.Equal(t, 7, AvailabilityFromUptime(7*time.Hour+30*time.Minute))
	assert.Equal(t, AvailabilityMax, AvailabilityFromUptime(72*time.Hour))
}
