package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/returncode"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
)

func init() {
	downloadCmd.Flags().String("start", "", "start of the date range (YYYY-MM-DD)")
	downloadCmd.Flags().String("end", "", "end of the date range (YYYY-MM-DD)")
	downloadCmd.Flags().String("file-format", "", "file format of FDL orders")
	downloadCmd.Flags().String("country", "", "country code of FDL orders")
	downloadCmd.Flags().StringP("output", "o", "-", "where to write the order data")
	downloadCmd.Flags().Bool("no-receipt", false, "reject the data so the bank delivers it again")

	uploadCmd.Flags().String("file-format", "", "file format of FUL orders")
	uploadCmd.Flags().String("country", "", "country code of FUL orders")
	uploadCmd.Flags().Bool("with-es", true, "submit FUL orders with electronic signature processing")

	rootCmd.AddCommand(downloadCmd, uploadCmd, ordersCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download <order-type>",
	Short: "Run a download order (e.g. HPD, STA, C53, FDL)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		o := order.Order{Type: args[0]}
		o.FileFormat, _ = flags.GetString("file-format")
		o.CountryCode, _ = flags.GetString("country")

		r, err := dateRange(cmd)
		if err != nil {
			return err
		}
		o.DateRange = r

		noReceipt, _ := flags.GetBool("no-receipt")
		var opts transaction.DownloadOptions
		if noReceipt {
			opts.Acknowledge = func([]byte) bool { return false }
		}

		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		result, err := s.client.Download(ctx, o, opts)
		if returncode.IsKind(err, returncode.KindNoDataAvailable) {
			s.logger.Info("no download data available", "order_type", o.Type)
			return nil
		}
		if err != nil {
			return err
		}
		s.logger.Info("download complete",
			"order_type", o.Type,
			"transaction_id", result.TransactionID,
			"segments", result.Segments,
			"bytes", len(result.Data),
			"acknowledged", result.Acknowledged)

		output, _ := flags.GetString("output")
		return writeOutput(cmd.OutOrStdout(), output, result.Data)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <order-type> <file>",
	Short: "Run an upload order (e.g. CCT, CDD, FUL)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		o := order.Order{Type: args[0]}
		o.FileFormat, _ = flags.GetString("file-format")
		o.CountryCode, _ = flags.GetString("country")
		o.WithES, _ = flags.GetBool("with-es")

		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading order data: %w", err)
		}

		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		result, err := s.client.Upload(ctx, o, data)
		if err != nil {
			return err
		}
		s.logger.Info("upload complete",
			"order_type", o.Type,
			"transaction_id", result.TransactionID,
			"segments", result.Segments)
		if result.OrderID != "" {
			fmt.Fprintln(cmd.OutOrStdout(), result.OrderID)
		}
		return nil
	},
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List the order types available for the configured version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, d := range []order.Direction{order.Download, order.Upload} {
			types := order.Types(d)
			sort.Strings(types)
			for _, t := range types {
				if _, err := order.Lookup(cfg.Version(), t); err == nil {
					fmt.Fprintf(out, "%s\t%s\n", t, d)
				}
			}
		}
		return nil
	},
}

func dateRange(cmd *cobra.Command) (*order.DateRange, error) {
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("--start and --end must be given together")
	}
	from, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return nil, fmt.Errorf("--start: %w", err)
	}
	to, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return nil, fmt.Errorf("--end: %w", err)
	}
	return &order.DateRange{Start: from, End: to}, nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing order data: %w", err)
	}
	return nil
}
