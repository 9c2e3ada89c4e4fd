package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/typepilot/internal/action"
	"github.com/nerrad567/typepilot/internal/auth"
	"github.com/nerrad567/typepilot/internal/capture"
	"github.com/nerrad567/typepilot/internal/infrastructure/config"
	"github.com/nerrad567/typepilot/internal/infrastructure/logging"
	"github.com/nerrad567/typepilot/internal/observer"
	"github.com/nerrad567/typepilot/internal/overlay"
)

const (
	defaultCoreURL = "http://127.0.0.1:8484"
	tokenEnv       = "TYPEPILOT_TOKEN"
	triggerTimeout = 30 * time.Second
)

// surfaceFlags are shared by every command that talks to a running core.
type surfaceFlags struct {
	url    string
	token  string
	target string
}

func (f *surfaceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", defaultCoreURL, "core HTTP address")
	cmd.Flags().StringVar(&f.token, "token", "", "surface token (default $"+tokenEnv+" or minted from the config secret)")
	cmd.Flags().StringVar(&f.target, "target", "", "automation target (default the core's own)")
}

// resolveToken picks the surface token: the flag, then the environment,
// then a token minted locally from the configured JWT secret.
func (f *surfaceFlags) resolveToken(surface auth.Surface) (string, error) {
	if f.token != "" {
		return f.token, nil
	}
	if tok := os.Getenv(tokenEnv); tok != "" {
		return tok, nil
	}
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return "", fmt.Errorf("no token given and config unreadable: %w", err)
	}
	return auth.GenerateAccessToken(surface, cfg.Security.JWT.Secret, cfg.Security.JWT.AccessTokenTTL)
}

func newObserveCmd() *cobra.Command {
	var (
		flags   surfaceFlags
		logFile string
	)
	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Show the terminal overlay for a running core",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := flags.resolveToken(auth.Surface{Name: "overlay", Role: auth.RoleController})
			if err != nil {
				return err
			}

			// The overlay owns the terminal, so logs go to a file or nowhere.
			var out io.Writer = io.Discard
			if logFile != "" {
				fh, openErr := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
				if openErr != nil {
					return fmt.Errorf("opening log file: %w", openErr)
				}
				defer fh.Close()
				out = fh
			}
			log := logging.NewWithWriter(out, config.LoggingConfig{Level: "debug", Format: "text"}, version)

			client, err := observer.New(observer.Config{
				BaseURL: flags.url,
				Token:   token,
				Target:  flags.target,
				Logger:  log,
			})
			if err != nil {
				return err
			}
			return observe(cmd.Context(), client)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&logFile, "log-file", "", "write observer logs to this file")
	return cmd
}

// observe runs the observer connection alongside the overlay. Closing the
// overlay ends the connection; an auth failure ends both.
func observe(ctx context.Context, client *observer.Client) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		err := client.Run(ctx)
		if err != nil {
			cancel()
		}
		runErr <- err
	}()

	uiErr := overlay.Run(ctx, client)
	cancel()
	if err := <-runErr; err != nil {
		return fmt.Errorf("observer: %w", err)
	}
	return uiErr
}

func newTriggerCmd() *cobra.Command {
	var (
		flags surfaceFlags
		text  string
	)
	cmd := &cobra.Command{
		Use:   "trigger <action>",
		Short: "Run an action on a running core as if its hotkey were pressed",
		Long: "Run an action on a running core. Actions: " +
			strings.Join(actionNames(), ", ") + ".",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := action.Parse(args[0])
			if err != nil {
				return err
			}
			token, err := flags.resolveToken(auth.Surface{Name: "cli", Role: auth.RoleController})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), triggerTimeout)
			defer cancel()
			body, err := trigger(ctx, http.DefaultClient, flags, token, a, text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&text, "text", "", "text to act on instead of the current selection")
	return cmd
}

func actionNames() []string {
	all := action.All()
	names := make([]string, 0, len(all))
	for _, a := range all {
		names = append(names, a.String())
	}
	return names
}

type triggerRequest struct {
	Target string        `json:"target,omitempty"`
	Input  capture.Input `json:"input"`
}

// trigger posts one action to the core and returns the response body.
func trigger(ctx context.Context, hc *http.Client, flags surfaceFlags, token string, a action.Action, text string) ([]byte, error) {
	endpoint, err := url.JoinPath(flags.url, "/api/v1/actions", string(a))
	if err != nil {
		return nil, fmt.Errorf("building action URL: %w", err)
	}

	req := triggerRequest{Target: flags.target}
	if text != "" {
		req.Input.Selection = &text
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling core: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("core returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func newTokenCmd() *cobra.Command {
	var (
		surface string
		role    string
		ttl     int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a surface token from the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			cfg, err := config.Load(getConfigPath())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if ttl <= 0 {
				ttl = cfg.Security.JWT.AccessTokenTTL
			}
			tok, err := auth.GenerateAccessToken(auth.Surface{Name: surface, Role: r}, cfg.Security.JWT.Secret, ttl)
			if err != nil {
				if errors.Is(err, auth.ErrNoSecret) {
					return fmt.Errorf("%w: set security.jwt.secret or TYPEPILOT_JWT_SECRET", err)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&surface, "surface", "cli", "surface name carried in the token")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleController), "observer, controller or admin")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "lifetime in minutes (default security.jwt.access_token_ttl)")
	return cmd
}
