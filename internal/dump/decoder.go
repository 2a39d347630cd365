package dump

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// decoderSource reads the stdout of a decoder such as `bgpdump -Mv`.
type decoderSource struct {
	*scannerSource
	cmd    *exec.Cmd
	logger *zap.Logger
}

// StartDecoder runs decoder with path appended and streams its stdout.
func StartDecoder(ctx context.Context, decoder []string, path string, maxLineBytes int, logger *zap.Logger) (Source, error) {
	if len(decoder) == 0 {
		return nil, fmt.Errorf("%w: no decoder configured for %s", ErrStreamUnavailable, path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamUnavailable, err)
	}

	args := append(append([]string{}, decoder[1:]...), path)
	cmd := exec.CommandContext(ctx, decoder[0], args...)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: decoder stdout: %v", ErrStreamUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", ErrStreamUnavailable, decoder[0], err)
	}

	logger.Info("decoder started",
		zap.String("decoder", decoder[0]),
		zap.Strings("args", args),
		zap.Int("pid", cmd.Process.Pid),
	)
	return &decoderSource{
		scannerSource: newScannerSource(stdout, maxLineBytes),
		cmd:           cmd,
		logger:        logger,
	}, nil
}

// Close closes the pipe, so a decoder stopped early gets SIGPIPE, and waits
// for it to exit. A non-zero exit is returned as an error; lines already
// read stay valid.
func (d *decoderSource) Close() error {
	_ = d.closer.Close()
	if err := d.cmd.Wait(); err != nil {
		return fmt.Errorf("decoder %s: %w", d.cmd.Path, err)
	}
	d.logger.Debug("decoder exited", zap.Int("exit_code", d.cmd.ProcessState.ExitCode()))
	return nil
}
