// Package availability merges item status from the circulation backends
// into a single per-request view.
//
// Offsite material is answered by the shared-repository service (keyed by
// barcode), everything else by the local circulation system (keyed by item
// id). Items that are nominally available but housed in a Clancy-managed
// facility get a confirmatory inventory check before being reported as
// available.
package availability

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/culsys/valet-service/internal/bib"
)

// Status is a circulation status string. Backends report free-form status
// names ("Checked out", "Item Out on Loan"); the constants below are the
// ones policy decisions branch on, everything else passes through verbatim.
type Status string

const (
	StatusAvailable   Status = "Available"
	StatusUnavailable Status = "Unavailable"
	StatusCheckedOut  Status = "Checked out"

	// StatusUnknown means no backend could say anything about the item,
	// e.g. offsite material not yet accessioned at the repository. It is
	// deliberately distinct from StatusUnavailable.
	StatusUnknown Status = "Unknown"
)

// restingStatus is the inventory system's name for an item on its shelf.
const restingStatus = "Item In at Rest"

// FolioGateway answers per-item status lookups from the local ILS.
type FolioGateway interface {
	ItemStatus(ctx context.Context, itemID string) (string, error)
}

// ScsbGateway answers availability from the shared offsite repository:
// a barcode to status map, either for a whole bib or for specific
// barcodes.
type ScsbGateway interface {
	BibAvailability(ctx context.Context, institutionID, institution string) (map[string]string, error)
	ItemAvailability(ctx context.Context, barcodes []string) (map[string]string, error)
}

// CaiasoftGateway answers barcode status lookups from the Clancy
// inventory system.
type CaiasoftGateway interface {
	ItemStatus(ctx context.Context, barcode string) (string, error)
}

// Resolver resolves item availability across the backends. Safe for
// concurrent use; all per-request state lives in the Resolution.
type Resolver struct {
	folio    FolioGateway
	scsb     ScsbGateway
	caiasoft CaiasoftGateway
	logger   zerolog.Logger

	// lookupLimit bounds concurrent per-item ILS lookups.
	lookupLimit int
}

// NewResolver creates a Resolver over the three backend gateways.
func NewResolver(folio FolioGateway, scsb ScsbGateway, caiasoft CaiasoftGateway, logger zerolog.Logger) *Resolver {
	return &Resolver{
		folio:       folio,
		scsb:        scsb,
		caiasoft:    caiasoft,
		logger:      logger,
		lookupLimit: 4,
	}
}

// Map holds resolved statuses keyed by barcode (offsite) or item id (onsite).
type Map map[string]Status

// Resolution is the availability view for one record, resolved once per
// request. It is never shared across requests.
type Resolution struct {
	statuses Map
}

// Resolve fetches availability for every item on the record. Backend
// failures degrade per item rather than failing the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, record *bib.Record) *Resolution {
	resolution := &Resolution{statuses: make(Map)}

	if offsite := record.OffsiteHoldings(); len(offsite) > 0 {
		r.resolveOffsite(ctx, record, offsite, resolution)
	}
	if onsite := record.OnsiteHoldings(); len(onsite) > 0 {
		r.resolveOnsite(ctx, record, onsite, resolution)
	}

	return resolution
}

// resolveOffsite asks the repository for the whole bib once and keys the
// answers by barcode. Barcodes the repository has never heard of stay
// unknown; that usually means material not yet accessioned.
func (r *Resolver) resolveOffsite(ctx context.Context, record *bib.Record, holdings []*bib.Holding, resolution *Resolution) {
	institution, institutionID := scsbInstitution(record.ID())

	byBarcode, err := r.scsb.BibAvailability(ctx, institutionID, institution)
	if err != nil {
		r.logger.Error().Err(err).Str("bib_id", record.ID()).
			Msg("offsite availability lookup failed")
		byBarcode = nil
	}

	var missing []string
	for _, holding := range holdings {
		for _, item := range holding.Items {
			if status, ok := byBarcode[item.Barcode]; ok {
				resolution.statuses[item.Barcode] = Status(status)
			} else {
				resolution.statuses[item.Barcode] = StatusUnknown
				missing = append(missing, item.Barcode)
			}
		}
	}

	// The bib-level answer can lag accessioning. Before settling on
	// Unknown, ask the item-level endpoint about the uncovered barcodes.
	// When the bib-level call itself failed the backend is down and the
	// follow-up is skipped.
	if err != nil || len(missing) == 0 {
		return
	}
	byItem, err := r.scsb.ItemAvailability(ctx, missing)
	if err != nil {
		r.logger.Warn().Err(err).Str("bib_id", record.ID()).
			Msg("offsite item availability lookup failed")
		return
	}
	for _, barcode := range missing {
		if status, ok := byItem[barcode]; ok {
			resolution.statuses[barcode] = Status(status)
		}
	}
}

// resolveOnsite looks up each item's ILS status, a bounded number at a
// time. A failed lookup marks that one item unavailable.
func (r *Resolver) resolveOnsite(ctx context.Context, record *bib.Record, holdings []*bib.Holding, resolution *Resolution) {
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.lookupLimit)

	for _, holding := range holdings {
		for _, item := range holding.Items {
			group.Go(func() error {
				status := r.onsiteItemStatus(groupCtx, record.Locations(), holding, item)
				mu.Lock()
				resolution.statuses[item.ItemID] = status
				mu.Unlock()
				return nil
			})
		}
	}

	// Lookups never return errors, they degrade to StatusUnavailable.
	_ = group.Wait()
}

func (r *Resolver) onsiteItemStatus(ctx context.Context, locations *bib.Locations, holding *bib.Holding, item *bib.Item) Status {
	name, err := r.folio.ItemStatus(ctx, item.ItemID)
	if err != nil {
		r.logger.Warn().Err(err).Str("item_id", item.ItemID).
			Msg("item status lookup failed")
		return StatusUnavailable
	}

	// The ILS can believe a Clancy-housed item is on the shelf when the
	// facility knows it is out. Double-check with the inventory system.
	if Status(name) == StatusAvailable && locations.IsClancyLocation(holding.LocationCode) {
		return r.clancyItemStatus(ctx, item)
	}

	return Status(name)
}

func (r *Resolver) clancyItemStatus(ctx context.Context, item *bib.Item) Status {
	name, err := r.caiasoft.ItemStatus(ctx, item.Barcode)
	if err != nil {
		r.logger.Warn().Err(err).Str("barcode", item.Barcode).
			Msg("inventory status lookup failed")
		return StatusUnavailable
	}

	if name == restingStatus {
		return StatusAvailable
	}

	// Surface the facility's own wording on the request form.
	item.UseRestriction = name
	return Status(name)
}

// scsbInstitution splits a record id into the repository's institution
// code and the institution-local id.
func scsbInstitution(id string) (institution, institutionID string) {
	if rest, ok := strings.CutPrefix(id, "SCSB-"); ok {
		return "SCSB", rest
	}
	return "CUL", id
}

// ItemStatus returns the resolved status for one item of one holding.
func (res *Resolution) ItemStatus(holding *bib.Holding, item *bib.Item) Status {
	if bib.IsOffsiteLocation(holding.LocationCode) {
		return res.lookup(item.Barcode)
	}
	return res.lookup(item.ItemID)
}

func (res *Resolution) lookup(key string) Status {
	if status, ok := res.statuses[key]; ok {
		return status
	}
	return StatusUnknown
}

// Statuses exposes the raw resolved map.
func (res *Resolution) Statuses() Map {
	return res.statuses
}

// AvailableItems returns the items of the given holdings that resolved
// to StatusAvailable.
func (res *Resolution) AvailableItems(holdings []*bib.Holding) []*bib.Item {
	var available []*bib.Item
	for _, holding := range holdings {
		for _, item := range holding.Items {
			if res.ItemStatus(holding, item) == StatusAvailable {
				available = append(available, item)
			}
		}
	}
	return available
}

// CheckedOutCount counts items of the given holdings whose status is
// exactly StatusCheckedOut.
func (res *Resolution) CheckedOutCount(holdings []*bib.Holding) int {
	count := 0
	for _, holding := range holdings {
		for _, item := range holding.Items {
			if res.ItemStatus(holding, item) == StatusCheckedOut {
				count++
			}
		}
	}
	return count
}
