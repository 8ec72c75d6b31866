package main

import (
	"fmt"
	"io"

	"github.com/nimasrn/school-payment/internal/app"
	"github.com/nimasrn/school-payment/internal/config"
	"github.com/nimasrn/school-payment/internal/services"
	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <order_id>...",
		Short: "Poll the gateway for each order and settle what it reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			db, err := app.OpenDB(cfg)
			if err != nil {
				return err
			}
			rdb, err := app.OpenRedis(cfg)
			if err != nil {
				return err
			}
			svc, err := app.NewPaymentService(cfg, db, rdb)
			if err != nil {
				return err
			}

			var failed int
			for _, orderID := range args {
				res, err := svc.Reconcile(cmd.Context(), orderID)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s\terror: %v\n", orderID, err)
					continue
				}
				printResult(cmd.OutOrStdout(), orderID, res)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d orders failed to reconcile", failed, len(args))
			}
			return nil
		},
	}
}

func printResult(w io.Writer, orderID string, res *services.SettlementResult) {
	fmt.Fprintf(w, "%s\t%s -> %s", orderID, res.PreviousStatus, res.Status)
	switch {
	case res.Stale:
		fmt.Fprint(w, "\tstale report ignored")
	case res.Credited && res.Invoice != nil:
		fmt.Fprintf(w, "\tcredited invoice %d (paid %s of %s, %s)",
			res.Invoice.ID, res.Invoice.PaidAmount.StringFixed(2), res.Invoice.TotalAmount.StringFixed(2), res.Invoice.Status)
	}
	if res.Receipt != nil {
		fmt.Fprintf(w, "\treceipt %s", res.Receipt.ReceiptNumber)
	}
	fmt.Fprintln(w)
}
