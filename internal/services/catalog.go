package services

import (
	"github.com/culsys/valet-service/internal/availability"
	"github.com/culsys/valet-service/internal/bib"
	"github.com/culsys/valet-service/internal/mailer"
)

// Catalog resolves service keys to their definition and strategy.
type Catalog struct {
	services map[string]*Service
}

// Service pairs a configured definition with its behavior.
type Service struct {
	Definition *Definition
	Strategy   Strategy
}

// Deps are the shared backends the strategies draw on.
type Deps struct {
	Endpoints Endpoints
	Mailer    mailer.Mailer
	Folio     RecallClient
	Resolver  *availability.Resolver

	// InactiveBarcodes may be nil when no legacy mirror is configured.
	InactiveBarcodes InactiveBarcodeSource
}

// NewCatalog wires every configured service to its strategy. Definitions
// whose key has no registered strategy get Base behavior, which covers
// the plain form-and-email services.
func NewCatalog(definitions []*Definition, deps Deps) *Catalog {
	catalog := &Catalog{services: make(map[string]*Service, len(definitions))}
	for _, def := range definitions {
		catalog.services[def.Key] = &Service{
			Definition: def,
			Strategy:   strategyFor(def, deps),
		}
	}
	return catalog
}

func strategyFor(def *Definition, deps Deps) Strategy {
	base := Base{Def: def}
	switch def.Key {
	case "campus_paging":
		return &CampusPaging{Base: base, Endpoints: deps.Endpoints}
	case "campus_paging_pilot":
		return &CampusPagingPilot{Base: base, Endpoints: deps.Endpoints}
	case "fli_paging":
		return &FliPaging{Base: base, Endpoints: deps.Endpoints}
	case "campus_scan":
		return &CampusScan{Base: base, Endpoints: deps.Endpoints}
	case "ill_scan":
		return &IllScan{Base: base, Endpoints: deps.Endpoints}
	case "ill":
		return &Ill{Base: base, Endpoints: deps.Endpoints}
	case "illiad":
		return &IlliadRedirect{Base: base, Endpoints: deps.Endpoints}
	case "borrow_direct":
		return &BorrowDirect{Base: base, Endpoints: deps.Endpoints}
	case "special_collections":
		return &SpecialCollections{Base: base, Endpoints: deps.Endpoints}
	case "paging":
		return &Paging{Base: base, Mailer: deps.Mailer}
	case "bearstor":
		return NewBearstor(def, deps.Mailer)
	case "barnard_remote":
		return NewBarnardRemote(def, deps.Mailer)
	case "starrstor":
		return NewStarrstor(def, deps.Mailer, deps.InactiveBarcodes)
	case "avery_onsite":
		return &AveryOnsite{Base: base, Mailer: deps.Mailer}
	case "precat":
		return &Precat{Base: base, Mailer: deps.Mailer}
	case "in_process":
		return &InProcess{Base: base, Mailer: deps.Mailer}
	case "notonshelf":
		return &NotOnShelf{Base: base, Mailer: deps.Mailer}
	case "item_feedback":
		return &ItemFeedback{Base: base, Mailer: deps.Mailer}
	case "elink":
		return &Elink{Base: base}
	case "recall":
		return &Recall{Base: base, Folio: deps.Folio, Endpoints: deps.Endpoints}
	default:
		return base
	}
}

// Resolve finds the service for a key.
func (c *Catalog) Resolve(key string) (*Service, error) {
	service, ok := c.services[key]
	if !ok {
		return nil, bib.NewConfigurationError(key, "unknown service")
	}
	return service, nil
}

// Keys lists the configured service keys.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.services))
	for key := range c.services {
		keys = append(keys, key)
	}
	return keys
}
