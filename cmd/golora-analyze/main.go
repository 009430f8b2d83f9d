package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/d21d3q/golora/pkg/golora"
)

var (
	rootCmd = &cobra.Command{
		Use:   "golora-analyze [hex]",
		Short: "Verify and decode signed LoRa sensor packets",
		Long:  "golora-analyze verifies the Ed25519 signature of a LoRa sensor packet and prints the decoded reading.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := golora.AnalyzeOptions{KeyHex: keyHex}
			ctx := cmd.Context()
			if len(args) == 0 {
				return runInteractive(ctx, opts)
			}
			return runAnalyze(ctx, opts, args[0])
		},
	}

	signCmd = &cobra.Command{
		Use:   "sign <payload-hex>",
		Short: "Sign a payload with a node seed and print the packet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			packet, err := golora.SignHex(args[0], seedHex)
			if err != nil {
				return err
			}
			fmt.Println(packet)
			return nil
		},
	}

	pubkeyCmd = &cobra.Command{
		Use:   "pubkey",
		Short: "Print the public key matching a node seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := golora.PublicKeyHex(seedHex)
			if err != nil {
				return err
			}
			fmt.Println(pub)
			return nil
		},
	}

	keyHex  string
	seedHex string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&keyHex, "key", "", "hex-encoded 32-byte trusted Ed25519 public key (defaults to the deployment key)")
	for _, c := range []*cobra.Command{signCmd, pubkeyCmd} {
		c.Flags().StringVar(&seedHex, "seed", "", "hex-encoded 32-byte Ed25519 private key seed")
		_ = c.MarkFlagRequired("seed")
		rootCmd.AddCommand(c)
	}
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Fatal(err)
	}
}

func runInteractive(ctx context.Context, opts golora.AnalyzeOptions) error {
	scanner := bufio.NewScanner(os.Stdin)
	logrus.Info("golora analyze mode. Paste a hex packet and press Enter (Ctrl+D to exit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runAnalyze(ctx, opts, line); err != nil {
			logrus.WithError(err).Error("failed to decode packet")
		}
	}
	return scanner.Err()
}

func runAnalyze(ctx context.Context, opts golora.AnalyzeOptions, hex string) error {
	result, err := golora.AnalyzeHexWithOptions(ctx, hex, opts)
	if err != nil {
		return err
	}
	fmt.Println(result.String())
	return nil
}
