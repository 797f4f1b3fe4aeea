package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sol-txflow/internal/logic/account"
	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/server"
)

type TransferOptions struct {
	*RootOptions
	From          string
	To            string
	Amount        string
	Lamports      uint64
	CULimit       uint32
	CUPrice       uint64
	Commitment    string
	WaitSeconds   uint32
	SkipPreflight bool
	NoWait        bool
}

// NewTransferCommand 构造、签名、提交并等待一笔 SOL 转账
func NewTransferCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransferOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer SOL and wait for the outcome",
		Long: `Build a system transfer, sign it with the sender key, submit it and
monitor it until the requested commitment is reached.

Example:
  txctl transfer --from alice --to 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin --amount 0.01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "sender private key, or a key name from the profile")
	cmd.Flags().StringVar(&opts.To, "to", "", "recipient address")
	cmd.Flags().StringVar(&opts.Amount, "amount", "", "amount in SOL, e.g. 0.5")
	cmd.Flags().Uint64Var(&opts.Lamports, "lamports", 0, "amount in lamports, used when --amount is empty")
	cmd.Flags().Uint32Var(&opts.CULimit, "cu-limit", 0, "compute unit limit")
	cmd.Flags().Uint64Var(&opts.CUPrice, "cu-price", 0, "compute unit price in micro-lamports")
	cmd.Flags().StringVar(&opts.Commitment, "commitment", "", "target commitment (processed|confirmed|finalized)")
	cmd.Flags().Uint32Var(&opts.WaitSeconds, "wait", 0, "monitor timeout in seconds, 0 uses the server default")
	cmd.Flags().BoolVar(&opts.SkipPreflight, "skip-preflight", false, "skip preflight simulation")
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "return right after submission")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runTransfer(cmd *cobra.Command, opts *TransferOptions) error {
	key := opts.key(opts.From)
	raw, err := txn.ParsePrivateKey(key)
	if err != nil {
		return err
	}
	payer, err := txn.AddressOf(raw)
	if err != nil {
		return err
	}
	lamports := opts.Lamports
	if opts.Amount != "" {
		if lamports, err = account.ParseSOL(opts.Amount); err != nil {
			return err
		}
	}
	if lamports == 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	commitment := opts.commitment(opts.Commitment)

	return opts.withClient(cmd, func(ctx context.Context, c *server.Client) error {
		built, err := c.BuildTransfer(ctx, &server.BuildTransferRequest{From: payer.String(), To: opts.To, Lamports: lamports})
		if err != nil {
			return err
		}
		draft, err := c.CreateDraft(ctx, &server.CreateDraftRequest{
			FeePayer:     payer.String(),
			ExecConfig:   server.ExecConfig{ComputeUnitLimit: opts.CULimit, ComputeUnitPrice: opts.CUPrice},
			Instructions: built.Instructions,
		})
		if err != nil {
			return err
		}
		if _, err := c.Compile(ctx, &server.CompileRequest{ID: draft.ID, Commitment: commitment}); err != nil {
			return err
		}
		if _, err := c.Sign(ctx, &server.SignRequest{ID: draft.ID, PrivateKeys: []string{key}}); err != nil {
			return err
		}
		submitted, err := c.Submit(ctx, &server.SubmitRequest{ID: draft.ID, SkipPreflight: opts.SkipPreflight})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "submitted %s\n", submitted.Signature)
		if opts.NoWait {
			return opts.print(cmd, submitted)
		}
		return opts.monitor(ctx, cmd, c, &server.MonitorRequest{
			ID:             draft.ID,
			Commitment:     commitment,
			TimeoutSeconds: opts.WaitSeconds,
		})
	})
}

type StatusOptions struct {
	*RootOptions
	Commitment  string
	WaitSeconds uint32
	IncludeLogs bool
}

// NewStatusCommand 按签名等待终态
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status <signature>",
		Short: "Monitor a submitted signature until it settles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				return opts.monitor(ctx, cmd, c, &server.MonitorRequest{
					Signature:      args[0],
					Commitment:     opts.commitment(opts.Commitment),
					TimeoutSeconds: opts.WaitSeconds,
					IncludeLogs:    opts.IncludeLogs,
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Commitment, "commitment", "", "target commitment (processed|confirmed|finalized)")
	cmd.Flags().Uint32Var(&opts.WaitSeconds, "wait", 0, "monitor timeout in seconds, 0 uses the server default")
	cmd.Flags().BoolVar(&opts.IncludeLogs, "logs", false, "include program logs")

	return cmd
}

// NewGetCommand 查询服务端内存中的交易快照
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <transaction-id>",
		Short: "Show a transaction snapshot held by the service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				tx, err := c.Get(ctx, &server.IDRequest{ID: args[0]})
				if err != nil {
					return err
				}
				return rootOpts.print(cmd, tx)
			})
		},
	}
}

// monitor 状态推送写 stderr，最终结果写 stdout；非成功结果返回错误
func (o *RootOptions) monitor(ctx context.Context, cmd *cobra.Command, c *server.Client, req *server.MonitorRequest) error {
	result, err := c.Monitor(ctx, req, func(u *server.StatusUpdate) {
		fmt.Fprintf(cmd.ErrOrStderr(), "status %s slot=%d\n", u.Commitment, u.Slot)
	})
	if err != nil {
		return err
	}
	if err := o.print(cmd, result); err != nil {
		return err
	}
	if result.Outcome != txn.OutcomeSucceeded.String() {
		return fmt.Errorf("transaction %s: %s", result.Signature, result.Outcome)
	}
	return nil
}

func (o *RootOptions) commitment(flag string) string {
	if flag == "" && o.profile != nil {
		return o.profile.Commitment
	}
	return flag
}
