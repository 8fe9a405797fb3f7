//go:build unix

package expect

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func helperCommand(args ...string) *exec.Cmd {
	cmd := exec.Command(os.Args[0], append([]string{"-test.run=^TestHelperProcess$", "--"}, args...)...)
	cmd.Env = append(os.Environ(), "GO_TEST_MODE=helper")
	return cmd
}

func startHelperSession(t *testing.T, opts []Option, args ...string) (*Session, *exec.Cmd) {
	t.Helper()
	cmd := helperCommand(args...)
	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 80})
	require.NoError(t, err)
	ch, err := NewFileChannel(ptm)
	if err != nil {
		_ = ptm.Close()
	}
	require.NoError(t, err)
	s, err := New(ch, append([]Option{WithTimeout(10 * time.Second)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
		if cmd.ProcessState == nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
	})
	return s, cmd
}

func TestPTY_IsTTY(t *testing.T) {
	for _, v := range waiterVariants {
		t.Run(v.name, func(t *testing.T) {
			ptm, pts, err := pty.Open()
			require.NoError(t, err)

			ch, err := NewFileChannel(ptm, v.opts...)
			require.NoError(t, err)
			s, err := New(ch, WithTimeout(5*time.Second))
			require.NoError(t, err)
			defer s.Close()

			assert.True(t, s.IsTTY())
			assert.True(t, s.IsAlive())

			_, err = pts.Write([]byte("ready\n"))
			require.NoError(t, err)
			line, err := s.ReadLine(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "ready\r\n", string(line))

			require.NoError(t, pts.Close())
			m, err := s.Expect(context.Background(), []Pattern{EOF})
			require.NoError(t, err)
			assert.Empty(t, m.Before)
		})
	}
}

func TestPTY_InteractiveHelper(t *testing.T) {
	var transcript bytes.Buffer
	s, cmd := startHelperSession(t, []Option{WithLogfile(&transcript)}, "interactive")
	ctx := context.Background()

	_, err := s.ExpectString(ctx, "Interactive mode ready")
	require.NoError(t, err)

	_, err = s.SendLine("ping")
	require.NoError(t, err)
	m, err := s.Expect(ctx, []Pattern{Regexp(regexp.MustCompile(`ECHO: (\w+)\r\n`))})
	require.NoError(t, err)
	assert.Equal(t, "ping", string(m.Groups[1]))

	_, err = s.SendLine("exit")
	require.NoError(t, err)
	_, err = s.ExpectString(ctx, "Exiting.")
	require.NoError(t, err)

	_, err = s.Expect(ctx, []Pattern{EOF})
	require.NoError(t, err)
	require.NoError(t, cmd.Wait())

	assert.Contains(t, transcript.String(), "ping\n")
	assert.Contains(t, transcript.String(), "ECHO: ping")
}

func TestPTY_MaxReadDoesNotAffectOutput(t *testing.T) {
	run := func(maxRead int) []byte {
		s, cmd := startHelperSession(t, []Option{WithMaxRead(maxRead)}, "banner")
		m, err := s.ExpectString(context.Background(), "banner done> ")
		require.NoError(t, err)
		m2, err := s.Expect(context.Background(), []Pattern{EOF})
		require.NoError(t, err)
		assert.Empty(t, m2.Before)
		require.NoError(t, cmd.Wait())
		return m.Before
	}
	a := run(1100)
	b := run(2000)
	assert.Equal(t, string(a), string(b))
	assert.Len(t, a, 64*(4+72+2))
}

func TestPTY_ControlCharacter(t *testing.T) {
	s, cmd := startHelperSession(t, nil, "interactive")
	ctx := context.Background()

	_, err := s.ExpectString(ctx, "Interactive mode ready")
	require.NoError(t, err)

	// ctrl-d at the start of a line is end of input, in canonical mode
	_, err = s.SendControl('d')
	require.NoError(t, err)
	_, err = s.Expect(ctx, []Pattern{EOF})
	require.NoError(t, err)
	require.NoError(t, cmd.Wait())
}
