package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	handler "nft-metadata-resolver/internal/adapter/handler/http"
	"nft-metadata-resolver/internal/app"
	"nft-metadata-resolver/internal/config"
	"nft-metadata-resolver/internal/domain/entity"
	"nft-metadata-resolver/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configDir string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "nftctl",
		Short: "Resolve NFT metadata from the command line",
		Long: `nftctl runs the same resolution pipeline as the API server: it reads the token
pointer from the chain, downloads the metadata document through the configured
content gateways and stores the result in the local cache.

Settings come from config.yaml in the config directory and from NFTMETA_* environment
variables, e.g. NFTMETA_CHAINS_ETHEREUM_RPC_URL.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configDir, "config", "c", "configs", "directory holding config.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(
		newResolveCmd(opts),
		newCollectionCmd(opts),
		newChainsCmd(opts),
		newHealthCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:     "resolve <chain> <contract> <tokenId>",
		Short:   "Resolve one token's metadata",
		Example: "  nftctl resolve ethereum 0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D 1",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				res, err := a.Service.ResolveNFT(ctx, args[0], args[1], args[2], refresh)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), handler.NewNFTResponse(res.Metadata, res.FromCache, res.Source))
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache and read from the chain")
	return cmd
}

func newCollectionCmd(opts *rootOptions) *cobra.Command {
	var (
		tokens        bool
		limit, offset int
	)
	cmd := &cobra.Command{
		Use:   "collection <chain> <contract>",
		Short: "Resolve a collection, or list its cached tokens with --tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if tokens {
					page, err := a.Service.ListCollectionTokens(ctx, args[0], args[1], limit, offset)
					if err != nil {
						return err
					}
					items := make([]handler.NFTResponse, 0, len(page.Items))
					for _, m := range page.Items {
						items = append(items, handler.NewNFTResponse(m, true, entity.TierPersistent))
					}
					return printJSON(cmd.OutOrStdout(), handler.TokenPageResponse{
						Items: items, Total: page.Total, Limit: page.Limit, Offset: page.Offset,
					})
				}

				res, err := a.Service.ResolveCollection(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), handler.NewCollectionResponse(res.Collection, res.FromCache))
			})
		},
	}
	cmd.Flags().BoolVar(&tokens, "tokens", false, "list cached tokens instead of reading the contract")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size when listing tokens (1-100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "tokens to skip when listing")
	return cmd
}

func newChainsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List the enabled chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app.App) error {
				for _, chain := range a.Service.SupportedChains() {
					fmt.Fprintln(cmd.OutOrStdout(), chain)
				}
				return nil
			})
		},
	}
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the hot tier and every chain node",
		Long:  "Probe the hot tier and every chain node. Exits non-zero when any dependency is unreachable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				report := a.Service.HealthCheck(ctx)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %s\n", "hot", status(report.HotTierHealthy))
				for _, chain := range a.Service.SupportedChains() {
					fmt.Fprintf(out, "%-10s %s\n", chain, status(report.Chains[chain]))
				}
				if report.Status() != entity.HealthOK {
					return fmt.Errorf("status %s", report.Status())
				}
				return nil
			})
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configDir)
			if err != nil {
				return err
			}
			out, err := config.Marshal(*cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// withApp builds the pipeline, runs fn and waits for background cache writes before returning.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(opts.configDir)
	if err != nil {
		return err
	}
	cfg.Logger.Level = opts.logLevel
	cfg.Logger.Output = "stderr"

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)
	if err := a.Close(context.WithoutCancel(ctx)); err != nil {
		log.Warn("Shutdown incomplete", zap.Error(err))
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "unreachable"
}
