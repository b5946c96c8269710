package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RegisterAssetInput describes a new serialized asset.
type RegisterAssetInput struct {
	AssetTag      string
	Type          string
	Brand         string
	Model         string
	SerialNumber  string
	ScanCode      string
	PurchasePrice *decimal.Decimal
	LocationID    string
	Status        AssetStatus
	Notes         *string
	ActorUserID   string
}

// CreateBulkSkuInput describes a new bulk SKU and its opening quantity.
type CreateBulkSkuInput struct {
	Name            string
	Category        string
	Unit            string
	LocationID      string
	BinScanCode     string
	MinThreshold    int
	InitialQuantity int
	ActorUserID     string
}

// CatalogService manages the serialized asset and bulk SKU master data the
// booking engine allocates against.
type CatalogService interface {
	RegisterAsset(ctx context.Context, in RegisterAssetInput) (*Asset, error)
	// GetAsset returns an asset with its effective status.
	GetAsset(ctx context.Context, id string) (*AssetView, error)
	// SetAssetStatus changes the stored status (AVAILABLE, MAINTENANCE, RETIRED).
	SetAssetStatus(ctx context.Context, id, actorUserID string, status AssetStatus) (*Asset, error)
	// EffectiveStatuses evaluates many assets at once. Unknown ids are omitted.
	EffectiveStatuses(ctx context.Context, ids []string) (map[string]EffectiveStatus, error)

	// CreateBulkSku creates a SKU with a balance row at its location. A positive
	// initial quantity is recorded as an ADJUSTMENT movement.
	CreateBulkSku(ctx context.Context, in CreateBulkSkuInput) (*BulkSku, error)
	// ListBulkSkus returns SKUs with on-hand balances, optionally for one location.
	ListBulkSkus(ctx context.Context, locationID string) ([]BulkSku, error)
}

type catalogService struct {
	pool   *pgxpool.Pool
	runner *TxRunner
	ledger BulkStockLedger
	status *StatusDeriver
}

func NewCatalogService(pool *pgxpool.Pool, runner *TxRunner, ledger BulkStockLedger, status *StatusDeriver) CatalogService {
	return &catalogService{pool: pool, runner: runner, ledger: ledger, status: status}
}

const assetColumns = `id, asset_tag, type, brand, model, serial_number, scan_code, purchase_price,
	location_id, status, notes, created_at, updated_at`

func scanAsset(row pgx.Row, a *Asset) error {
	return row.Scan(&a.ID, &a.AssetTag, &a.Type, &a.Brand, &a.Model, &a.SerialNumber, &a.ScanCode,
		&a.PurchasePrice, &a.LocationID, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
}

// ── Assets ────────────────────────────────────────────────────────────────────

func (s *catalogService) RegisterAsset(ctx context.Context, in RegisterAssetInput) (*Asset, error) {
	required := []struct {
		name  string
		value *string
	}{
		{"assetTag", &in.AssetTag},
		{"type", &in.Type},
		{"brand", &in.Brand},
		{"model", &in.Model},
		{"serialNumber", &in.SerialNumber},
		{"scanCode", &in.ScanCode},
		{"locationId", &in.LocationID},
	}
	for _, f := range required {
		*f.value = strings.TrimSpace(*f.value)
		if *f.value == "" {
			return nil, Validationf("%s is required", f.name)
		}
	}
	if in.Status == "" {
		in.Status = AssetStatusAvailable
	}
	if !in.Status.Valid() {
		return nil, Validationf("status must be AVAILABLE, MAINTENANCE or RETIRED")
	}
	price := decimal.NullDecimal{}
	if in.PurchasePrice != nil {
		if in.PurchasePrice.IsNegative() {
			return nil, Validationf("purchasePrice must not be negative")
		}
		price = decimal.NewNullDecimal(in.PurchasePrice.Round(2))
	}

	var a Asset
	err := s.runner.Serializable(ctx, func(tx pgx.Tx) error {
		if err := scanAsset(tx.QueryRow(ctx, `
			INSERT INTO assets (asset_tag, type, brand, model, serial_number, scan_code, purchase_price, location_id, status, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING `+assetColumns,
			in.AssetTag, in.Type, in.Brand, in.Model, in.SerialNumber, in.ScanCode, price, in.LocationID, in.Status, in.Notes), &a); err != nil {
			if isUniqueViolation(err) {
				return Conflict(nil, "Asset tag, serial number or scan code already in use")
			}
			return fmt.Errorf("failed to insert asset: %w", err)
		}
		return writeAuditTx(ctx, tx, auditRecord{
			ActorUserID: in.ActorUserID,
			EntityType:  EntityAsset,
			EntityID:    a.ID,
			Action:      "created",
			After:       a,
		})
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *catalogService) GetAsset(ctx context.Context, id string) (*AssetView, error) {
	var a Asset
	if err := scanAsset(s.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id), &a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("Asset not found")
		}
		return nil, fmt.Errorf("failed to load asset: %w", err)
	}
	effective, err := s.status.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AssetView{Asset: a, EffectiveStatus: effective}, nil
}

func (s *catalogService) SetAssetStatus(ctx context.Context, id, actorUserID string, status AssetStatus) (*Asset, error) {
	if !status.Valid() {
		return nil, Validationf("status must be AVAILABLE, MAINTENANCE or RETIRED")
	}
	var a Asset
	err := s.runner.Serializable(ctx, func(tx pgx.Tx) error {
		before, err := storedAssetStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := scanAsset(tx.QueryRow(ctx, `
			UPDATE assets SET status = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+assetColumns, id, status), &a); err != nil {
			return fmt.Errorf("failed to update asset status: %w", err)
		}
		return writeAuditTx(ctx, tx, auditRecord{
			ActorUserID: actorUserID,
			EntityType:  EntityAsset,
			EntityID:    id,
			Action:      "status_changed",
			Before:      map[string]any{"status": before},
			After:       map[string]any{"status": status},
		})
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *catalogService) EffectiveStatuses(ctx context.Context, ids []string) (map[string]EffectiveStatus, error) {
	return s.status.Statuses(ctx, ids)
}

// ── Bulk SKUs ─────────────────────────────────────────────────────────────────

func (s *catalogService) CreateBulkSku(ctx context.Context, in CreateBulkSkuInput) (*BulkSku, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.BinScanCode = strings.TrimSpace(in.BinScanCode)
	if in.Name == "" || in.Category == "" || in.BinScanCode == "" || in.LocationID == "" {
		return nil, Validationf("name, category, binScanCode and locationId are required")
	}
	if in.Unit == "" {
		in.Unit = "each"
	}
	if in.MinThreshold < 0 || in.InitialQuantity < 0 {
		return nil, Validationf("minThreshold and initialQuantity must not be negative")
	}

	var sku BulkSku
	err := s.runner.Serializable(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO bulk_skus (name, category, unit, location_id, bin_scan_code, min_threshold)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, name, category, unit, location_id, bin_scan_code, min_threshold, active, created_at
		`, in.Name, in.Category, in.Unit, in.LocationID, in.BinScanCode, in.MinThreshold).Scan(
			&sku.ID, &sku.Name, &sku.Category, &sku.Unit, &sku.LocationID, &sku.BinScanCode,
			&sku.MinThreshold, &sku.Active, &sku.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return Conflict(nil, "Bin scan code %s is already used at this location", in.BinScanCode)
			}
			return fmt.Errorf("failed to insert bulk SKU: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO bulk_stock_balances (bulk_sku_id, location_id, on_hand_quantity)
			VALUES ($1, $2, 0)
		`, sku.ID, sku.LocationID); err != nil {
			return fmt.Errorf("failed to create stock balance: %w", err)
		}

		sku.OnHand = 0
		if in.InitialQuantity > 0 {
			reason := "Initial quantity"
			change, err := s.ledger.ApplyMovementTx(ctx, tx, Movement{
				BulkSkuID:   sku.ID,
				LocationID:  sku.LocationID,
				ActorUserID: in.ActorUserID,
				Kind:        MovementAdjustment,
				Delta:       in.InitialQuantity,
				Reason:      &reason,
			})
			if err != nil {
				return err
			}
			sku.OnHand = change.Next
		}
		sku.BelowThreshold = sku.OnHand < sku.MinThreshold

		return writeAuditTx(ctx, tx, auditRecord{
			ActorUserID: in.ActorUserID,
			EntityType:  EntityBulkSku,
			EntityID:    sku.ID,
			Action:      "created",
			After:       sku,
		})
	})
	if err != nil {
		return nil, err
	}
	return &sku, nil
}

func (s *catalogService) ListBulkSkus(ctx context.Context, locationID string) ([]BulkSku, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.name, s.category, s.unit, s.location_id, s.bin_scan_code, s.min_threshold, s.active,
		       COALESCE(b.on_hand_quantity, 0), s.created_at
		FROM bulk_skus s
		LEFT JOIN bulk_stock_balances b ON b.bulk_sku_id = s.id AND b.location_id = s.location_id
		WHERE ($1::text = '' OR s.location_id = $1::text)
		ORDER BY s.name, s.id
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bulk SKUs: %w", err)
	}
	defer rows.Close()

	skus := []BulkSku{}
	for rows.Next() {
		var sku BulkSku
		if err := rows.Scan(&sku.ID, &sku.Name, &sku.Category, &sku.Unit, &sku.LocationID, &sku.BinScanCode,
			&sku.MinThreshold, &sku.Active, &sku.OnHand, &sku.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bulk SKU: %w", err)
		}
		sku.BelowThreshold = sku.OnHand < sku.MinThreshold
		skus = append(skus, sku)
	}
	return skus, rows.Err()
}
