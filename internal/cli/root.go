package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"sol-txflow/internal/server"
)

// ValidFormats 支持的输出格式
var ValidFormats = []string{"json", "yaml"}

// DialFunc 建立到 txflow 服务的连接
type DialFunc func(addr string) (*server.Client, io.Closer, error)

// RootOptions 全局参数，命令行优先于 profile
type RootOptions struct {
	Addr        string
	ProfilePath string
	Format      string
	Timeout     time.Duration

	profile *Profile
	dial    DialFunc
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(server.Dial)
}

func newRootCommand(dial DialFunc) *cobra.Command {
	opts := &RootOptions{dial: dial}

	cmd := &cobra.Command{
		Use:   "txctl",
		Short: "txctl - Solana transaction lifecycle client",
		Long:  "Command line client for the txflow service: build, sign, submit and monitor Solana transactions.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "127.0.0.1:9090", "txflow gRPC address")
	cmd.PersistentFlags().StringVarP(&opts.ProfilePath, "profile", "p", "", "profile yaml (addr, format, keys)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "output format (json|yaml)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 90*time.Second, "overall request timeout")

	cmd.AddCommand(NewTransferCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewAirdropCommand(opts))
	cmd.AddCommand(NewKeygenCommand(opts))
	cmd.AddCommand(NewRentCommand(opts))

	return cmd
}

// resolve 合并 profile；显式传入的 flag 不被覆盖
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	if o.ProfilePath != "" {
		p, err := LoadProfile(o.ProfilePath)
		if err != nil {
			return err
		}
		o.profile = p
		flags := cmd.Flags()
		if p.Addr != "" && !flags.Changed("addr") {
			o.Addr = p.Addr
		}
		if p.Format != "" && !flags.Changed("format") {
			o.Format = p.Format
		}
	}
	if !slices.Contains(ValidFormats, o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}
	return nil
}

// withClient 建立连接并在超时上下文中执行 fn
func (o *RootOptions) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *server.Client) error) error {
	client, closer, err := o.dial(o.Addr)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.Timeout)
	defer cancel()
	return fn(ctx, client)
}

func (o *RootOptions) print(cmd *cobra.Command, v any) error {
	return Write(cmd.OutOrStdout(), o.Format, v)
}

// key 按名字从 profile 取私钥，取不到时原样返回
func (o *RootOptions) key(nameOrKey string) string {
	if o.profile != nil {
		if k, ok := o.profile.Keys[nameOrKey]; ok {
			return k
		}
	}
	return nameOrKey
}
