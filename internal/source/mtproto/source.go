// Package mtproto reads channel history through a Telegram user session
// using gotd.
package mtproto

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/scrape"
)

// Config carries the application credentials and session location.
type Config struct {
	AppID       int
	AppHash     string
	Phone       string
	Password    string
	SessionFile string
}

// CodePrompt asks the operator for the login code sent by Telegram.
type CodePrompt func(ctx context.Context, sent *tg.AuthSentCode) (string, error)

// Source opens authenticated MTProto sessions.
type Source struct {
	cfg    Config
	prompt CodePrompt
	logger *zap.Logger
}

// New builds a Source. A nil prompt reads the code from stdin.
func New(cfg Config, prompt CodePrompt, logger *zap.Logger) (*Source, error) {
	if cfg.AppID == 0 || strings.TrimSpace(cfg.AppHash) == "" {
		return nil, fmt.Errorf("telegram api_id and api_hash are required")
	}
	if strings.TrimSpace(cfg.SessionFile) == "" {
		return nil, fmt.Errorf("telegram session file is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompt == nil {
		prompt = ReaderPrompt(os.Stdin, os.Stderr)
	}
	return &Source{cfg: cfg, prompt: prompt, logger: logger}, nil
}

// Open connects, authenticates when the stored session is not authorized,
// runs fn with a Client and disconnects when fn returns.
func (s *Source) Open(ctx context.Context, fn func(ctx context.Context, c scrape.Client) error) error {
	client := telegram.NewClient(s.cfg.AppID, s.cfg.AppHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: s.cfg.SessionFile},
		Logger:         s.logger.Named("gotd"),
	})
	err := client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, auth.NewFlow(s.authenticator(), auth.SendCodeOptions{})); err != nil {
			return fmt.Errorf("telegram auth: %w", err)
		}
		s.logger.Info("telegram session ready")
		return fn(ctx, NewClient(client.API(), s.logger))
	})
	if err != nil {
		return fmt.Errorf("telegram session: %w", err)
	}
	return nil
}

func (s *Source) authenticator() auth.UserAuthenticator {
	code := auth.CodeAuthenticatorFunc(s.prompt)
	if s.cfg.Password != "" {
		return auth.Constant(s.cfg.Phone, s.cfg.Password, code)
	}
	return auth.CodeOnly(s.cfg.Phone, code)
}

// ReaderPrompt prints a prompt to out and reads one line from in.
func ReaderPrompt(in io.Reader, out io.Writer) CodePrompt {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := fmt.Fprint(out, "Enter Telegram login code: "); err != nil {
			return "", fmt.Errorf("write prompt: %w", err)
		}
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read login code: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
}
