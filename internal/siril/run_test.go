package siril

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepflow/internal/config"
	"prepflow/internal/script"
	"prepflow/internal/session"
)

type fakeClient struct {
	sent    []string
	failOn  string
	failErr error
}

func (f *fakeClient) Connect(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                      { return nil }

func (f *fakeClient) Send(ctx context.Context, command string) error {
	f.sent = append(f.sent, command)
	if f.failOn != "" && command == f.failOn {
		return f.failErr
	}
	return nil
}

func testScript() *script.Script {
	sum := session.Summary{
		Dir: "/data/test",
		Counts: map[session.Kind]int{
			session.Biases: 5,
			session.Flats:  5,
			session.Darks:  5,
			session.Lights: 10,
		},
	}
	return script.Generate(config.DefaultStages(), sum)
}

func TestRunScriptDispatchesInOrder(t *testing.T) {
	s := testScript()
	fc := &fakeClient{}

	var results []CommandResult
	err := RunScript(context.Background(), fc, s, func(r CommandResult) {
		results = append(results, r)
	})
	require.NoError(t, err)

	assert.Equal(t, s.Commands(), fc.sent)
	require.Len(t, results, len(fc.sent))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fc.sent[i], r.Command)
		assert.True(t, r.Ok())
	}
}

func TestRunScriptStopsOnFirstFailure(t *testing.T) {
	s := testScript()
	cmds := s.Commands()
	require.Greater(t, len(cmds), 3)

	boom := errors.New("stack failed")
	fc := &fakeClient{failOn: cmds[2], failErr: boom}

	var last CommandResult
	err := RunScript(context.Background(), fc, s, func(r CommandResult) { last = r })
	require.ErrorIs(t, err, boom)

	assert.Equal(t, cmds[:3], fc.sent)
	assert.Equal(t, 2, last.Index)
	assert.False(t, last.Ok())
}

func TestRunScriptNilCallback(t *testing.T) {
	fc := &fakeClient{}
	assert.NoError(t, RunScript(context.Background(), fc, testScript(), nil))
}

func TestPipeClientConnectMissingPipes(t *testing.T) {
	c := NewPipeClient(t.TempDir(), slog.Default())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := c.Connect(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPipeClientSendBeforeConnect(t *testing.T) {
	c := NewPipeClient(t.TempDir(), slog.Default())
	err := c.Send(context.Background(), "requires 1.4.0")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCLIRunnerMissingBinary(t *testing.T) {
	r := &CLIRunner{Binary: "/nonexistent/siril-cli"}
	_, err := r.Run(context.Background(), "requires 1.4.0\n")
	assert.Error(t, err)
}

func TestExtractVersion(t *testing.T) {
	assert.Equal(t, "siril 1.4.0", extractVersion("siril 1.4.0\nCopyright\n"))
	assert.Equal(t, "unknown", extractVersion("\n\n"))
}
