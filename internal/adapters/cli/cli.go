package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"booking-engine/internal/adapters/web"
	"booking-engine/internal/app"
	"booking-engine/internal/core"
)

// ErrIntegrityViolations is returned by the integrity command when the scan
// found problems, so the process can exit non-zero.
var ErrIntegrityViolations = errors.New("integrity violations found")

// Options carries what the CLI needs beyond the ApplicationService.
type Options struct {
	JWTSecret string
	// ActorUserID is recorded as the actor of write commands.
	ActorUserID string
}

const usage = `Available commands:
  integrity                              scan allocations and stock balances for violations
  statuses <assetId>...                  print effective statuses
  skus [locationId]                      list bulk SKUs with on-hand balances
  adjust <skuId> <delta> <reason...>     manual stock adjustment (needs ACTOR_USER_ID)
  movements <skuId> [limit]              stock movement history
  audit <entityType> <entityId>          audit trail of one entity
  token <userId> <ADMIN|STAFF|STUDENT>   mint an API token valid for 12h`

// Run executes a one-shot CLI command. args is os.Args[1:]; the first element
// is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, opts Options, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "integrity":
		report, err := svc.RunIntegrityScan(ctx)
		if err != nil {
			return fmt.Errorf("integrity scan failed: %w", err)
		}
		printIntegrity(out, report)
		if !report.Clean() {
			return ErrIntegrityViolations
		}
		return nil

	case "statuses", "status":
		if len(args) < 2 {
			return errors.New("usage: app statuses <assetId>...")
		}
		result, err := svc.GetAssetStatuses(ctx, args[1:])
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(result.Statuses))
		for id := range result.Statuses {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintf(out, "%-38s %s\n", "ASSET", "STATUS")
		for _, id := range ids {
			fmt.Fprintf(out, "%-38s %s\n", id, result.Statuses[id])
		}
		return nil

	case "skus":
		location := ""
		if len(args) > 1 {
			location = args[1]
		}
		result, err := svc.ListBulkSkus(ctx, location)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-30s %-16s %8s %8s\n", "NAME", "BIN", "ON HAND", "MIN")
		for _, s := range result.Skus {
			flag := ""
			if s.BelowThreshold {
				flag = "  LOW"
			}
			fmt.Fprintf(out, "%-30s %-16s %8d %8d%s\n", s.Name, s.BinScanCode, s.OnHand, s.MinThreshold, flag)
		}
		return nil

	case "adjust":
		if len(args) < 4 {
			return errors.New("usage: app adjust <skuId> <delta> <reason...>")
		}
		if opts.ActorUserID == "" {
			return errors.New("ACTOR_USER_ID must be set for write commands")
		}
		delta, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("delta must be an integer: %q", args[2])
		}
		change, err := svc.AdjustBulkStock(ctx, app.Actor{UserID: opts.ActorUserID}, args[1], app.AdjustStockRequest{
			Delta:  delta,
			Reason: strings.Join(args[3:], " "),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "On hand: %d -> %d\n", change.Current, change.Next)
		return nil

	case "movements":
		if len(args) < 2 {
			return errors.New("usage: app movements <skuId> [limit]")
		}
		limit := 0
		if len(args) > 2 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("limit must be an integer: %q", args[2])
			}
			limit = n
		}
		result, err := svc.ListStockMovements(ctx, args[1], limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-20s %-12s %6s  %s\n", "AT", "KIND", "DELTA", "REASON")
		for _, m := range result.Movements {
			reason := ""
			if m.Reason != nil {
				reason = *m.Reason
			}
			fmt.Fprintf(out, "%-20s %-12s %+6d  %s\n", m.CreatedAt.UTC().Format(time.DateTime), m.Kind, m.Delta, reason)
		}
		return nil

	case "audit":
		if len(args) < 3 {
			return errors.New("usage: app audit <entityType> <entityId>")
		}
		result, err := svc.ListAudit(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Entries)

	case "token":
		if len(args) < 3 {
			return errors.New("usage: app token <userId> <ADMIN|STAFF|STUDENT>")
		}
		role := core.Role(strings.ToUpper(args[2]))
		if !role.Valid() {
			return fmt.Errorf("unknown role %q", args[2])
		}
		token, err := web.IssueToken(opts.JWTSecret, args[1], role, 12*time.Hour)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, token)
		return nil

	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
}

func printIntegrity(out io.Writer, report *core.IntegrityReport) {
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintln(out, "  INTEGRITY SCAN")
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  Overlapping allocations : %d\n", len(report.Overlaps))
	for _, v := range report.Overlaps {
		fmt.Fprintf(out, "    asset %s: %s [%s, %s) vs %s [%s, %s)\n",
			v.AssetID,
			v.FirstBookingID, v.FirstStartsAt.UTC().Format(time.RFC3339), v.FirstEndsAt.UTC().Format(time.RFC3339),
			v.OtherBookingID, v.OtherStartsAt.UTC().Format(time.RFC3339), v.OtherEndsAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(out, "  Balance drift           : %d\n", len(report.Drift))
	for _, d := range report.Drift {
		fmt.Fprintf(out, "    sku %s @ %s: on hand %d, ledger %d\n", d.BulkSkuID, d.LocationID, d.OnHand, d.LedgerTotal)
	}
	if report.Clean() {
		fmt.Fprintln(out, "  OK")
	}
	fmt.Fprintln(out, strings.Repeat("=", 62))
}
