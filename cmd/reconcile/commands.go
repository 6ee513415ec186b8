package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"plantstore-be/internal/auth"
	"plantstore-be/internal/payment"
	"plantstore-be/internal/utils"

	"github.com/spf13/cobra"
)

func listCmd(open backendFactory) *cobra.Command {
	var (
		status string
		review bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending payments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := payment.ListFilter{NeedsReview: review, Limit: limit}
			if status != "" {
				s, err := payment.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = &s
			}

			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				payments, err := b.payments.ListPayments(ctx, filter)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "CHECKOUT ID\tSTATUS\tAMOUNT\tPHONE\tRECEIPT\tCREATED\tREVIEW")
				for _, p := range payments {
					fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\t%s\t%s\n",
						p.CheckoutRequestID,
						p.Status,
						p.Amount,
						p.PhoneNumber,
						dash(utils.PtrString(p.MpesaReceipt)),
						p.CreatedAt.Format(time.RFC3339),
						dash(utils.PtrString(p.ReviewReason)),
					)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (pending, completed, failed)")
	cmd.Flags().BoolVarP(&review, "review", "r", false, "Only paid payments waiting for manual review")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum results")

	return cmd
}

func retryCmd(open backendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [checkoutRequestId]",
		Short: "Re-run order creation for a paid payment left pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				outcome, err := b.reconciler.Retry(ctx, args[0])
				switch {
				case errors.Is(err, payment.ErrNotPending):
					return fmt.Errorf("%s is already settled", args[0])
				case errors.Is(err, payment.ErrNotRetryable):
					return fmt.Errorf("%s has no confirmed receipt yet, use query to check Daraja", args[0])
				case err != nil:
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], outcome)
				return nil
			})
		},
	}
}

func queryCmd(open backendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "query [checkoutRequestId]",
		Short: "Ask Daraja for the current state of an STK push",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				res, err := b.payments.QueryGateway(ctx, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Checkout ID:  %s\n", res.CheckoutRequestID)
				fmt.Fprintf(out, "Result code:  %s\n", res.ResultCode)
				fmt.Fprintf(out, "Result:       %s\n", res.ResultDesc)
				return nil
			})
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
