package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"pkt.systems/inlined"
	"pkt.systems/inlined/chat"
	"pkt.systems/inlined/internal/appconfig"
	"pkt.systems/inlined/transport"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Spawn the assistant backend and run the inline assist engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Backend.Command == "" {
				return fmt.Errorf("backend.command is not configured")
			}

			ctx := cmd.Context()
			backend := exec.CommandContext(ctx, cfg.Backend.Command, cfg.Backend.Args...)
			backend.Env = os.Environ()
			for k, v := range cfg.Backend.Env {
				backend.Env = append(backend.Env, k+"="+v)
			}
			backend.Stderr = os.Stderr

			stdin, err := backend.StdinPipe()
			if err != nil {
				return fmt.Errorf("backend stdin: %w", err)
			}
			stdout, err := backend.StdoutPipe()
			if err != nil {
				return fmt.Errorf("backend stdout: %w", err)
			}
			if err := backend.Start(); err != nil {
				return fmt.Errorf("start backend: %w", err)
			}
			logger.Info("assistant backend started", "command", cfg.Backend.Command, "pid", backend.Process.Pid)

			conn := transport.New(stdout, stdin, stdin, logger)
			conn.Start(ctx)
			defer func() { _ = conn.Close() }()

			engine, err := inlined.New(cfg.EngineConfig(), inlined.EngineDeps{
				Transport: conn,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			defer engine.Close()
			conn.OnNotification(chat.MethodProgress, engine.HandleProgressNotification)

			logger.Info("inline assist engine ready")
			<-ctx.Done()

			logger.Info("shutting down")
			_ = conn.Close()
			if err := backend.Wait(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("backend exited: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config.yaml (default: ~/.inlined/config.yaml)")
	return cmd
}
