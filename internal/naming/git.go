package naming

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/pkg/errors"
)

// Git runs git commands in Dir.
type Git struct {
	Dir string
}

// Show returns the output of `git show <rev>`, e.g. "HEAD" or "master..".
func (g Git) Show(ctx context.Context, rev string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "show", rev)
	cmd.Dir = g.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "git show %s: %s", rev, stderr.String())
	}
	return stdout.String(), nil
}
