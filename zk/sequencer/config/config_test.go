package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func testCLIContext(t *testing.T, set func(*flag.FlagSet)) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	app.Flags = Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags {
		require.NoError(t, f.Apply(fs))
	}
	if set != nil {
		set(fs)
	}
	return cli.NewContext(app, fs, nil)
}

func TestKeeperFromCLI_ParsesByteSize(t *testing.T) {
	ctx := testCLIContext(t, nil)
	cfg, err := KeeperFromCLI(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(30_000_000), cfg.BatchGasLimit)
	assert.Equal(t, uint64(128*1024), uint64(cfg.MaxTxEncodingSize))
	assert.Equal(t, 2*time.Second, cfg.BatchDeadline)
}

func TestEthSenderFromCLI_LeavesCustomSenderNilWhenUnset(t *testing.T) {
	ctx := testCLIContext(t, nil)
	cfg := EthSenderFromCLI(ctx)
	assert.Nil(t, cfg.CustomCommitSender)
}
