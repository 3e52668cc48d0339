package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "z-bid-writer/pkg/errors"
)

func TestParseArgs(t *testing.T) {
	var out bytes.Buffer

	opts, err := parseArgs([]string{"run", "--fresh", "-c", "conf"}, &out)
	require.NoError(t, err)
	assert.Equal(t, options{command: "run", configDir: "conf", fresh: true}, opts)

	opts, err = parseArgs([]string{"outline"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "configs", opts.configDir)
	assert.False(t, opts.fresh)

	_, err = parseArgs([]string{"publish"}, &out)
	assert.ErrorContains(t, err, "unknown command")

	_, err = parseArgs(nil, &out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "usage: bid-gen")

	_, err = parseArgs([]string{"--help"}, &out)
	assert.True(t, errors.Is(err, pflag.ErrHelp))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(apperrors.New(apperrors.CodeEmptyInput, "empty")))
	assert.Equal(t, 2, exitCode(apperrors.New(apperrors.CodeOutlineNotFound, "missing")))
	assert.Equal(t, 1, exitCode(apperrors.New(apperrors.CodeRateLimited, "limited")))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}
