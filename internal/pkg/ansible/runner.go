package ansible

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes a command and reports its merged stdout/stderr line by line.
type Runner interface {
	Stream(ctx context.Context, dir, name string, args []string, onLine func(string)) error
}

type ExecRunner struct{}

func (ExecRunner) Stream(ctx context.Context, dir, name string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return fmt.Errorf("start %s: %w", name, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.CloseWithError(io.EOF)
		waitErr <- err
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(strings.TrimRight(scanner.Text(), "\r"))
	}
	// drain so Wait can finish if the scanner stopped early
	_, _ = io.Copy(io.Discard, pr)

	if err := <-waitErr; err != nil {
		return fmt.Errorf("%s exited: %w", name, err)
	}
	return nil
}

// PlaybookCommand returns args for ansible-playbook against one inventory.
func PlaybookCommand(inventoryPath, playbook string) []string {
	return []string{"-i", inventoryPath, playbook}
}
