package scenarios

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		sc, err := Load(f)
		require.NoError(t, err, "load %s", f)
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load("no-file.yaml")
	assert.Error(t, err)

	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}
	_, err = Load(write("bad.yaml", ":"))
	assert.Error(t, err)
	_, err = Load(write("unknown.yaml", "name: x\nbogus: 1\n"))
	assert.Error(t, err, "unknown fields are rejected")
	_, err = Load(write("anon.yaml", "steps: []\n"))
	assert.ErrorContains(t, err, "no name")
}

func TestDispatchDefToConfig(t *testing.T) {
	cfg := DispatchDef{ParkIdleVehicles: true, ReparkVehicles: true, Phases: []string{"activate_orders"}}.ToConfig()
	assert.True(t, cfg.ParkIdleVehicles)
	assert.True(t, cfg.ReparkVehiclesToHigherPriorityPositions)
	assert.False(t, cfg.RechargeIdleVehicles)
	assert.Equal(t, []string{"activate_orders"}, cfg.Phases)
}
