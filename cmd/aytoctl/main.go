package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"AytoSync/internal/config"
	"AytoSync/internal/updater"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	ConfigPath string
	Verbose    bool
}

// session 单次命令执行所需的客户端与编排器
type session struct {
	client *updater.Client
	orch   *updater.Orchestrator
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "aytoctl",
		Short:         "AYTO 数据更新与运维工具",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config/config.yaml", "配置文件路径")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "输出调试日志")

	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newUpdateCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newFixSequencesCommand(opts))
	cmd.AddCommand(newIntegrityCommand(opts))
	return cmd
}

// setup 加载配置并构建客户端与编排器；日志写 stderr，避免污染 JSON 输出
func setup(opts *rootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadConfigFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	client := updater.NewClient(cfg.Updater, logger)
	return &session{
		client: client,
		orch:   updater.NewOrchestrator(client, cfg.Updater.AutoUpdate, logger),
	}, nil
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "初始化：探测后端、检查更新，updater.auto_update 开启时自动应用",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := setup(opts, cmd)
			if err != nil {
				return err
			}
			err = s.orch.Start(cmd.Context())
			if werr := writeJSON(cmd.OutOrStdout(), s.orch.Status()); werr != nil {
				return werr
			}
			return err
		},
	}
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "比较远端 manifest 与本地水位",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := setup(opts, cmd)
			if err != nil {
				return err
			}
			state, err := s.orch.Check(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), state)
		},
	}
}

func newUpdateCommand(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "有更新时拉取快照并清空重灌",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := setup(opts, cmd)
			if err != nil {
				return err
			}
			if !force {
				state, err := s.orch.Check(cmd.Context())
				if err != nil {
					return err
				}
				if !state.IsUpdateAvailable {
					return writeJSON(cmd.OutOrStdout(), state)
				}
			}
			result, err := s.orch.Update(cmd.Context())
			if werr := writeJSON(cmd.OutOrStdout(), result); werr != nil {
				return werr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "跳过版本比较直接更新")
	return cmd
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出完整快照",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := setup(opts, cmd)
			if err != nil {
				return err
			}
			body, err := s.client.Export(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" {
				return writeIndented(cmd.OutOrStdout(), body)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			return writeIndented(f, body)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "写入文件（默认输出到 stdout）")
	return cmd
}

func newFixSequencesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fix-sequences",
		Short: "重置服务端自增序列",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := setup(opts, cmd)
			if err != nil {
				return err
			}
			body, err := s.client.FixSequences(cmd.Context())
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), body)
		},
	}
}

func newIntegrityCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "integrity",
		Short: "检查姓名弱引用与罚款字段",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := setup(opts, cmd)
			if err != nil {
				return err
			}
			body, err := s.client.Integrity(cmd.Context())
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), body)
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeIndented(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, werr := w.Write(raw)
		return werr
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
