package core

// MissingBulk is a bulk line whose successful scans fall short of the plan.
type MissingBulk struct {
	BulkSkuID string `json:"bulkSkuId"`
	Required  int    `json:"required"`
	Scanned   int    `json:"scanned"`
}

// ScanCompletion is the outcome of a completion attempt.
type ScanCompletion struct {
	Success           bool          `json:"success"`
	MissingSerialized []string      `json:"missingSerialized"`
	MissingBulk       []MissingBulk `json:"missingBulk"`
	OverrideUsed      bool          `json:"overrideUsed"`
}

// Complete reports whether nothing is missing.
func (c *ScanCompletion) Complete() bool {
	return len(c.MissingSerialized) == 0 && len(c.MissingBulk) == 0
}

// ComputeMissing compares a booking's items with its successful scans in one
// phase. A serialized asset is missing unless some successful scan names it;
// a bulk line is missing by max(0, planned - sum of scanned quantities).
// Failed scans and scans from the other phase are ignored.
func ComputeMissing(b *Booking, events []ScanEvent, phase ScanPhase) ([]string, []MissingBulk) {
	scannedAssets := make(map[string]struct{})
	scannedBulk := make(map[string]int)
	for _, e := range events {
		if !e.Success || e.Phase != phase {
			continue
		}
		if e.AssetID != nil {
			scannedAssets[*e.AssetID] = struct{}{}
		}
		if e.BulkSkuID != nil && e.Quantity != nil {
			scannedBulk[*e.BulkSkuID] += *e.Quantity
		}
	}

	missingSerialized := []string{}
	for _, it := range b.SerializedItems {
		if _, ok := scannedAssets[it.AssetID]; !ok {
			missingSerialized = append(missingSerialized, it.AssetID)
		}
	}

	missingBulk := []MissingBulk{}
	for _, it := range b.BulkItems {
		scanned := scannedBulk[it.BulkSkuID]
		if scanned < it.PlannedQuantity {
			missingBulk = append(missingBulk, MissingBulk{
				BulkSkuID: it.BulkSkuID,
				Required:  it.PlannedQuantity,
				Scanned:   scanned,
			})
		}
	}
	return missingSerialized, missingBulk
}
