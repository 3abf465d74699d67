package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRpmvercmpTildeSortsBeforeAbsence(t *testing.T) {
	assert.Less(t, rpmvercmp("1.0~rc1", "1.0"), 0)
}

func TestRpmvercmpDigitRunsCompareNumerically(t *testing.T) {
	assert.Greater(t, rpmvercmp("1.10", "1.9"), 0)
}

func TestRpmvercmpEqual(t *testing.T) {
	assert.Equal(t, 0, rpmvercmp("1.0", "1.0"))
	assert.Equal(t, 0, rpmvercmp("", ""))
}

func TestRpmvercmpAntisymmetric(t *testing.T) {
	cases := [][2]string{
		{"1.0", "1.1"}, {"1.0~rc1", "1.0"}, {"2.0", "1.10"},
		{"a", "b"}, {"1.0.0", "1.0"}, {"", "1"},
	}
	for _, c := range cases {
		a, b := rpmvercmp(c[0], c[1]), rpmvercmp(c[1], c[0])
		assert.Equal(t, -a, b, "cmp(%q,%q) should be -cmp(%q,%q)", c[0], c[1], c[1], c[0])
	}
}

func TestRpmvercmpTransitive(t *testing.T) {
	versions := []string{"1.0~rc1", "1.0", "1.0.1", "1.1", "1.9", "1.10", "2.0"}
	for i := 0; i < len(versions); i++ {
		for j := i; j < len(versions); j++ {
			assert.LessOrEqual(t, rpmvercmp(versions[i], versions[j]), 0)
		}
	}
}

func TestCompareEVREpochDominates(t *testing.T) {
	one := 1
	a := EVR{Epoch: &one, Version: "1.0", Release: "1"}
	b := EVR{Version: "99.0", Release: "99"}
	assert.Greater(t, CompareEVR(a, b), 0)
}

func TestCompareEVRMissingEpochIsZero(t *testing.T) {
	zero := 0
	a := EVR{Epoch: &zero, Version: "1.0", Release: "1"}
	b := EVR{Version: "1.0", Release: "1"}
	assert.Equal(t, 0, CompareEVR(a, b))
}

func TestEVRSatisfies(t *testing.T) {
	want := EVR{Version: "1.0", Release: "1"}
	have := EVR{Version: "1.0", Release: "2"}
	assert.True(t, EVRSatisfies(have, SenseGE, want))
	assert.False(t, EVRSatisfies(have, SenseLT, want))
}

func TestParseEVR(t *testing.T) {
	e, err := ParseEVR("2:1.0-3")
	assert.NoError(t, err)
	assert.NotNil(t, e.Epoch)
	assert.Equal(t, 2, *e.Epoch)
	assert.Equal(t, "1.0", e.Version)
	assert.Equal(t, "3", e.Release)

	e2, err := ParseEVR("1.0-3")
	assert.NoError(t, err)
	assert.Nil(t, e2.Epoch)
}
