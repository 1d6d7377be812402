package ifup

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func captureCommands(t *testing.T, fail func(argv []string) error) *[][]string {
	t.Helper()
	orig := runCommand
	t.Cleanup(func() { runCommand = orig })
	var calls [][]string
	runCommand = func(_ context.Context, name string, args ...string) ([]byte, error) {
		argv := append([]string{name}, args...)
		calls = append(calls, argv)
		if fail != nil {
			return []byte("RTNETLINK answers: operation not permitted"), fail(argv)
		}
		return nil, nil
	}
	return &calls
}

func TestBringUpRunsBothCommands(t *testing.T) {
	calls := captureCommands(t, nil)
	if err := BringUp(context.Background(), "can0", 500000, nil, false); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	want := []string{
		"ip link set can0 type can bitrate 500000",
		"ip link set can0 up",
	}
	if len(*calls) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), *calls)
	}
	for i, w := range want {
		if got := strings.Join((*calls)[i], " "); got != w {
			t.Fatalf("command %d: got %q want %q", i, got, w)
		}
	}
}

func TestBringUpSudoAndExtraPrefix(t *testing.T) {
	calls := captureCommands(t, nil)
	err := BringUp(context.Background(), "can1", 250000, []string{"env", "PATH=/sbin"}, true)
	if err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	got := strings.Join((*calls)[0], " ")
	want := "sudo env PATH=/sbin ip link set can1 type can bitrate 250000"
	if got != want {
		t.Fatalf("prefix order: got %q want %q", got, want)
	}
}

func TestBringUpStopsOnFirstFailure(t *testing.T) {
	boom := errors.New("exit status 2")
	calls := captureCommands(t, func([]string) error { return boom })
	err := BringUp(context.Background(), "can0", 500000, nil, false)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped command error, got %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("must stop after the first failing command, ran %d", len(*calls))
	}
	if !strings.Contains(err.Error(), "operation not permitted") {
		t.Fatalf("command output must be included: %v", err)
	}
}
