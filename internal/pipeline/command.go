package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// CommandConfig describes an external tool invocation.
type CommandConfig struct {
	Command []string          `mapstructure:"command"`
	Dir     string            `mapstructure:"dir"`
	Env     map[string]string `mapstructure:"env"`
}

// CommandStage runs an external process such as the transformation or
// enrichment tool. A non-zero exit fails the stage.
type CommandStage struct {
	name   string
	cfg    CommandConfig
	logger *zap.Logger
}

// NewCommandStage builds a CommandStage. An empty command makes the stage
// report ErrSkipped.
func NewCommandStage(name string, cfg CommandConfig, logger *zap.Logger) *CommandStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandStage{name: name, cfg: cfg, logger: logger.Named(name)}
}

// Name implements Stage.
func (s *CommandStage) Name() string { return s.name }

// Run executes the command, streaming its output to the log line by line.
func (s *CommandStage) Run(ctx context.Context) error {
	if len(s.cfg.Command) == 0 || strings.TrimSpace(s.cfg.Command[0]) == "" {
		return fmt.Errorf("%w: no command configured for %s", ErrSkipped, s.name)
	}
	// #nosec G204 -- the command comes from operator configuration.
	cmd := exec.CommandContext(ctx, s.cfg.Command[0], s.cfg.Command[1:]...)
	cmd.Dir = s.cfg.Dir
	if len(s.cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range s.cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	stdout := &lineLogger{logger: s.logger, stream: "stdout"}
	stderr := &lineLogger{logger: s.logger, stream: "stderr"}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	stdout.flush()
	stderr.flush()
	if err != nil {
		return fmt.Errorf("run %s: %w", strings.Join(s.cfg.Command, " "), err)
	}
	return nil
}

// lineLogger turns process output into one log entry per line.
type lineLogger struct {
	logger *zap.Logger
	stream string
	buf    bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			l.buf.WriteString(line)
			break
		}
		l.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (l *lineLogger) flush() {
	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

func (l *lineLogger) emit(line string) {
	if line == "" {
		return
	}
	l.logger.Info(line, zap.String("stream", l.stream))
}
