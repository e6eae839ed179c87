package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepperpots/fusehpm/fuse/ports"
)

func TestLineTraceParser_ParseTrace_ReadsStartEndTraceFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.csv")
	content := "cpu,symbol,label,start,end,gpu_eligible,cycles,instructions\n" +
		"0,matmul,[0],10,20,true,1000,2000\n" +
		"1,matmul,[1],10,25,false,1100,unknown\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	parser := newLineTraceParser()
	prof, err := parser.ParseTrace(path, ports.RuntimeOpenMP, false)
	require.NoError(t, err)

	instances := prof.GetInstances(true)
	require.Len(t, instances, 2)

	var sawGPU, sawUnknown bool
	for _, in := range instances {
		if in.CPU == 0 {
			assert.True(t, in.IsGPUEligible)
			v, ok := in.Value("cycles")
			require.True(t, ok)
			assert.Equal(t, int64(1000), v)
			sawGPU = true
		}
		if in.CPU == 1 {
			_, ok := in.Value("instructions")
			assert.False(t, ok)
			sawUnknown = true
		}
	}
	assert.True(t, sawGPU)
	assert.True(t, sawUnknown)
}

func TestLineTraceParser_MalformedRow_IsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.csv")
	content := "cpu,symbol,label,start,end,gpu_eligible,cycles\n" +
		"notanumber,matmul,[0],10,20,true,1000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	parser := newLineTraceParser()
	_, err := parser.ParseTrace(path, ports.RuntimeOpenMP, false)
	assert.Error(t, err)
}

func TestParseLabel_ParsesBracketedIntegers(t *testing.T) {
	label, err := parseLabel("[0,1,2]")
	require.NoError(t, err)
	assert.Equal(t, int64(0), label[0])
	assert.Equal(t, int64(1), label[1])
	assert.Equal(t, int64(2), label[2])
}
