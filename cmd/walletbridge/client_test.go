package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArg(t *testing.T) {
	t.Parallel()

	require.JSONEq(t, `"0x5FbDB2315678afecb367f032d93F642f64180aa3"`, string(parseArg("0x5FbDB2315678afecb367f032d93F642f64180aa3")))
	require.JSONEq(t, `1000`, string(parseArg("1000")))
	require.JSONEq(t, `true`, string(parseArg("true")))
	require.JSONEq(t, `[1,2]`, string(parseArg(" [1,2] ")))
	require.JSONEq(t, `"hello world"`, string(parseArg("hello world")))
}
