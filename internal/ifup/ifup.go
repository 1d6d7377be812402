// Package ifup brings SocketCAN network interfaces up via ip(8), the same
// commands one would otherwise run by hand:
//
//	ip link set <ch> type can bitrate <n>
//	ip link set <ch> up
package ifup

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kamilk/go-radar-driver/internal/logging"
)

// runCommand is a hook for tests.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// BringUp configures and enables one CAN channel. extraArgs tokens are
// prefixed verbatim before "ip", and useSudo prepends sudo before those.
func BringUp(ctx context.Context, channel string, bitrate int, extraArgs []string, useSudo bool) error {
	cmds := [][]string{
		{"ip", "link", "set", channel, "type", "can", "bitrate", strconv.Itoa(bitrate)},
		{"ip", "link", "set", channel, "up"},
	}
	for _, cmd := range cmds {
		argv := make([]string, 0, len(cmd)+len(extraArgs)+1)
		if useSudo {
			argv = append(argv, "sudo")
		}
		argv = append(argv, extraArgs...)
		argv = append(argv, cmd...)
		logging.L().Debug("ifup_exec", "cmd", strings.Join(argv, " "))
		out, err := runCommand(ctx, argv[0], argv[1:]...)
		if err != nil {
			return fmt.Errorf("ifup %s: %q: %w (output: %s)",
				channel, strings.Join(argv, " "), err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}
