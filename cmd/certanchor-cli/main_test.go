package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func TestNormalizeMnemonic(t *testing.T) {
	got := normalizeMnemonic([]byte("  Abandon  ABANDON\tabout \n"))
	assert.Equal(t, "abandon abandon about", got)
}

func TestOverrides(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("network", "", "")
	set.String("store", "", "")
	set.String("log-level", "warn", "")
	require.NoError(t, set.Parse([]string{"--network", "preview"}))

	ctx := cli.NewContext(cli.NewApp(), set, nil)
	got := overrides(ctx)
	assert.Equal(t, map[string]any{
		"network":   "preview",
		"log.level": "warn",
	}, got)
}

func TestReadJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cert.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"groupId": "class-2024",
		"certificateType": "degree",
		"certificateData": [
			{"key": "name", "values": [{"label": "Name", "value": "Ada", "type": "text", "isUnique": true}]}
		]
	}`), 0600))

	var in certificateInput
	require.NoError(t, readJSONFile(path, &in))
	req := in.request()
	assert.Equal(t, "class-2024", req.GroupID)
	assert.Equal(t, "degree", req.CertificateType)
	require.Len(t, req.CertificateData, 1)
	assert.True(t, req.CertificateData[0].Values[0].IsUnique)

	assert.Error(t, readJSONFile("", &in))
	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))
	assert.ErrorContains(t, readJSONFile(path, &in), "parse")
}
