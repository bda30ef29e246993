package main

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/lloyd/internal/coordinator"
)

// execute runs the CLI with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// workspace writes n points with integer coordinates to inputs/data.txt
// and returns the input and output directories. Integer coordinates keep
// every strategy's sums exact.
func workspace(t *testing.T, n int) (string, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "inputs")
	require.NoError(t, os.MkdirAll(in, 0o755))

	rng := rand.New(rand.NewPCG(3, 4))
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		fmt.Fprintf(&buf, "%d %d\n", rng.IntN(100), rng.IntN(100))
	}
	require.NoError(t, os.WriteFile(filepath.Join(in, "data.txt"), buf.Bytes(), 0o644))
	return in, filepath.Join(dir, "outputs")
}

var timingLine = regexp.MustCompile(`^Total elapsed time with "(\w+)" command: \d+\.\d{6}s\n$`)

func TestRunStrategiesWriteSameOutput(t *testing.T) {
	in, out := workspace(t, 500)

	var first []byte
	for _, command := range []string{"serial", "omp", "mpi", "hybrid"} {
		t.Run(command, func(t *testing.T) {
			stdout, err := execute(t, "run", "-c", "4", "-i", "20", "-t", "3", "--ranks", "3",
				"--input-dir", in, "--output-dir", out, command)
			require.NoError(t, err)

			m := timingLine.FindStringSubmatch(stdout)
			require.NotNil(t, m, "stdout %q", stdout)
			assert.Equal(t, command, m[1])

			data, err := os.ReadFile(filepath.Join(out, "data.txt.out"))
			require.NoError(t, err)
			assert.Len(t, strings.Split(strings.TrimRight(string(data), "\n"), "\n"), 500)
			if first == nil {
				first = data
				return
			}
			assert.Equal(t, string(first), string(data))
		})
	}
}

func TestRunDefaultsToSerial(t *testing.T) {
	in, out := workspace(t, 10)
	stdout, err := execute(t, "run", "-c", "2", "--input-dir", in, "--output-dir", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"serial" command`)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRunErrors(t *testing.T) {
	in, out := workspace(t, 10)

	_, err := execute(t, "run", "--input-dir", in, "--output-dir", out, "gpu")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `command "gpu" is not available`)

	_, err = execute(t, "run", "-c", "11", "--input-dir", in, "--output-dir", out)
	assert.Error(t, err, "more clusters than points")

	_, err = execute(t, "run", "-f", "missing.txt", "--input-dir", in, "--output-dir", out)
	assert.Error(t, err)

	_, err = execute(t, "run", "serial", "mpi")
	assert.Error(t, err, "at most one command")
}

func TestRunAgainstCoordinator(t *testing.T) {
	in, out := workspace(t, 200)

	s := coordinator.NewServer(coordinator.Options{HealthInterval: time.Hour})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	s.SetPublicAddr(ts.URL)

	_, err := execute(t, "run", "-c", "3", "-i", "15", "--input-dir", in, "--output-dir", out, "serial")
	require.NoError(t, err)
	local, err := os.ReadFile(filepath.Join(out, "data.txt.out"))
	require.NoError(t, err)

	remoteOut := filepath.Join(t.TempDir(), "remote")
	_, err = execute(t, "run", "-c", "3", "-i", "15", "--input-dir", in, "--output-dir", remoteOut,
		"--coordinator", ts.URL, "omp")
	require.NoError(t, err)
	remote, err := os.ReadFile(filepath.Join(remoteOut, "data.txt.out"))
	require.NoError(t, err)
	assert.Equal(t, string(local), string(remote))

	require.Len(t, s.Jobs().List(), 1)
	assert.Equal(t, "shared", s.Jobs().List()[0].Strategy)
}

func TestRunReadsConfig(t *testing.T) {
	in, out := workspace(t, 30)
	cfgPath := filepath.Join(t.TempDir(), "lloyd.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"run:\n  clusters: 31\n  input_dir: "+in+"\n  output_dir: "+out+"\n"), 0o600))

	_, err := execute(t, "run", "--config", cfgPath)
	require.Error(t, err, "clusters from the file exceed the point count")

	_, err = execute(t, "run", "--config", cfgPath, "-c", "2")
	require.NoError(t, err, "flags override the file")
	_, err = os.Stat(filepath.Join(out, "data.txt.out"))
	assert.NoError(t, err)
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	_, err := execute(t, "generate", "-n", "50", "-m", "10", "--seed", "9", "-f", a)
	require.NoError(t, err)
	_, err = execute(t, "generate", "-n", "50", "-m", "10", "--seed", "9", "-f", b)
	require.NoError(t, err)

	da, err := os.ReadFile(a)
	require.NoError(t, err)
	db, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, string(da), string(db))

	lines := strings.Split(strings.TrimRight(string(da), "\n"), "\n")
	require.Len(t, lines, 50)
	assert.Regexp(t, `^ *\d+\.\d{3} +\d+\.\d{3}$`, lines[0])

	_, err = execute(t, "generate", "-n", "0", "-f", a)
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		dir, filename, want string
	}{
		{"outputs", "data.txt", filepath.Join("outputs", "data.txt.out")},
		{"outputs", "sets/big.txt", filepath.Join("outputs", "sets", "big.txt.out")},
		{"outputs", "s3://points/run/data.txt", filepath.Join("outputs", "data.txt.out")},
		{"s3://results/run-1/", "data.txt", "s3://results/run-1/data.txt.out"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outputPath(tt.dir, tt.filename), tt.filename)
	}

	assert.Equal(t, filepath.Join("inputs", "data.txt"), inputPath("inputs", "data.txt"))
	assert.Equal(t, "s3://points/data.txt", inputPath("inputs", "s3://points/data.txt"))
}
