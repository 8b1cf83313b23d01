package shell

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain word", "hello", "'hello'"},
		{"spaces", "a b c", "'a b c'"},
		{"embedded single quote", "it's", `'it'\''s'`},
		{"empty", "", "''"},
		{"shell metacharacters", "a;rm -rf /", "'a;rm -rf /'"},
		{"double quotes pass through", `say "hi"`, `'say "hi"'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quote(tt.input); got != tt.want {
				t.Errorf("Quote(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeOutput(t *testing.T) {
	if got := normalizeOutput([]byte("line1\r\nline2\r\n")); got != "line1\nline2" {
		t.Errorf("normalizeOutput() = %q", got)
	}
	if got := normalizeOutput([]byte("plain\n")); got != "plain" {
		t.Errorf("normalizeOutput() = %q", got)
	}
}

func TestADBExecutor_BuildArgs(t *testing.T) {
	t.Run("with serial", func(t *testing.T) {
		e := NewADBExecutor("adb", "emulator-5554", "su")
		got := e.buildArgs("id -u")
		want := []string{"-s", "emulator-5554", "shell", "su", "-c", "'id -u'"}
		if len(got) != len(want) {
			t.Fatalf("buildArgs() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("buildArgs()[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("without serial", func(t *testing.T) {
		e := NewADBExecutor("", "", "")
		got := e.buildArgs("ls /")
		if got[0] != "shell" {
			t.Errorf("buildArgs()[0] = %q, want %q", got[0], "shell")
		}
		if got[len(got)-1] != "'ls /'" {
			t.Errorf("last arg = %q, want quoted command", got[len(got)-1])
		}
	})
}

func TestADBExecutor_Execute(t *testing.T) {
	t.Run("returns normalized stdout", func(t *testing.T) {
		e := NewADBExecutor("adb", "", "su")
		e.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
			return []byte("0\r\n"), nil, nil
		}
		out, err := e.Execute(context.Background(), "id -u")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if out != "0" {
			t.Errorf("Execute() = %q, want %q", out, "0")
		}
	})

	t.Run("non-zero exit yields CommandError", func(t *testing.T) {
		e := NewADBExecutor("adb", "", "su")
		e.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
			return nil, []byte("No such file or directory\n"), exitError(t)
		}
		_, err := e.Execute(context.Background(), "cat /missing")
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("Execute() error = %v, want *CommandError", err)
		}
		if cmdErr.Command != "cat /missing" {
			t.Errorf("CommandError.Command = %q", cmdErr.Command)
		}
		if !strings.Contains(cmdErr.Stderr, "No such file") {
			t.Errorf("CommandError.Stderr = %q", cmdErr.Stderr)
		}
	})
}

// exitError produces a real *exec.ExitError by running a command that
// fails, so errors.As behaves exactly as in production.
func exitError(t *testing.T) error {
	t.Helper()
	err := exec.Command("false").Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Skipf("cannot produce exec.ExitError on this system: %v", err)
	}
	return err
}

func TestProbe(t *testing.T) {
	t.Run("root shell accepted", func(t *testing.T) {
		e := stubExecutor{out: "0"}
		if err := Probe(context.Background(), e); err != nil {
			t.Fatalf("Probe() error = %v", err)
		}
	})

	t.Run("non-root shell rejected", func(t *testing.T) {
		e := stubExecutor{out: "2000"}
		if err := Probe(context.Background(), e); err == nil {
			t.Fatal("Probe() error = nil, want failure for uid 2000")
		}
	})

	t.Run("executor failure propagates", func(t *testing.T) {
		e := stubExecutor{err: errors.New("device offline")}
		if err := Probe(context.Background(), e); err == nil {
			t.Fatal("Probe() error = nil, want failure")
		}
	})
}

type stubExecutor struct {
	out string
	err error
}

func (s stubExecutor) Execute(context.Context, string) (string, error) {
	return s.out, s.err
}
