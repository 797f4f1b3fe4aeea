package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"sol-txflow/internal/logic/account"
	"sol-txflow/internal/server"
)

func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Show the SOL balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				bal, err := c.GetBalance(ctx, &server.AddressRequest{Address: args[0]})
				if err != nil {
					return err
				}
				return rootOpts.print(cmd, bal)
			})
		},
	}
}

type AirdropOptions struct {
	*RootOptions
	Commitment  string
	WaitSeconds uint32
}

// NewAirdropCommand 请求空投并等待到账，金额以 SOL 为单位
func NewAirdropCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AirdropOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "airdrop <address> <sol>",
		Short: "Fund an address from the faucet (devnet/testnet only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lamports, err := account.ParseSOL(args[1])
			if err != nil {
				return err
			}
			return opts.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				result, err := c.FundNative(ctx, &server.FundNativeRequest{
					Address:        args[0],
					Amount:         strconv.FormatUint(lamports, 10),
					Commitment:     opts.commitment(opts.Commitment),
					TimeoutSeconds: opts.WaitSeconds,
				})
				if err != nil {
					return err
				}
				return opts.print(cmd, result)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Commitment, "commitment", "", "target commitment (processed|confirmed|finalized)")
	cmd.Flags().Uint32Var(&opts.WaitSeconds, "wait", 0, "monitor timeout in seconds, 0 uses the server default")

	return cmd
}

func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a keypair, optionally from a 32-byte hex seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				kp, err := c.GenerateKeypair(ctx, &server.GenerateKeypairRequest{Seed: seed})
				if err != nil {
					return err
				}
				return rootOpts.print(cmd, kp)
			})
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "32-byte hex seed")
	return cmd
}

func NewRentCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rent <space>",
		Short: "Minimum balance for a rent-exempt account of the given size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			space, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}
			return rootOpts.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				rent, err := c.MinimumBalanceForRentExemption(ctx, &server.RentExemptionRequest{Space: space})
				if err != nil {
					return err
				}
				return rootOpts.print(cmd, rent)
			})
		},
	}
}
