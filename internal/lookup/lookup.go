// Package lookup is the scanner-facing read path: a barcode or a camera
// detection becomes a unit, its product and the stock behind it. Nothing here
// reserves stock; the checkout makes the authoritative check.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/catalog"
	"go-pos-ledger/internal/config"
	"go-pos-ledger/internal/metrics"
	"go-pos-ledger/internal/vision"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockInfo describes how much of one unit can be sold right now.
type StockInfo struct {
	HasStock           bool            `json:"has_stock"`
	AvailableUnits     int64           `json:"available_units"`
	AvailableBaseUnits decimal.Decimal `json:"available_base_units"`
	RequiredBaseUnits  int             `json:"required_base_units"`
}

func stockInfo(r catalog.Resolved) StockInfo {
	factor := decimal.NewFromInt(int64(r.Unit.ConversionFactor))
	available := r.Product.StockQuantity
	info := StockInfo{
		AvailableBaseUnits: available,
		RequiredBaseUnits:  r.Unit.ConversionFactor,
	}
	if factor.IsPositive() {
		info.HasStock = available.GreaterThanOrEqual(factor)
		info.AvailableUnits = available.Div(factor).Floor().IntPart()
	}
	return info
}

// Item is a resolved unit with its stock.
type Item struct {
	catalog.Resolved
	StockInfo StockInfo `json:"stock_info"`
}

// Candidate is an in-stock item a detection pointed at.
type Candidate struct {
	Item
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// Resolution is what the scan screen gets back from a camera lookup.
// AutoAccept is set when exactly one candidate clears the configured
// confidence; otherwise the cashier picks from Candidates or Suggestions.
type Resolution struct {
	Candidates  []Candidate `json:"candidates"`
	AutoAccept  bool        `json:"auto_accept"`
	Unavailable bool        `json:"unavailable"`
	Message     string      `json:"message,omitempty"`
	Suggestions []Item      `json:"suggestions,omitempty"`
}

type Service struct {
	catalog  *catalog.Catalog
	detector vision.Detector
	cfg      config.VisionConfig
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// New builds the service. detector may be nil when no sidecar is configured.
func New(cat *catalog.Catalog, detector vision.Detector, cfg config.VisionConfig, m *metrics.Metrics, log *zap.Logger) *Service {
	if cfg.SuggestionLimit <= 0 {
		cfg.SuggestionLimit = 5
	}
	return &Service{catalog: cat, detector: detector, cfg: cfg, metrics: m, log: log}
}

// LookupByIdentifier resolves a scanned barcode.
func (s *Service) LookupByIdentifier(ctx context.Context, barcode string) (Item, error) {
	r, err := s.catalog.Resolve(ctx, barcode)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.log.Debug("barcode not found", zap.String("barcode", barcode))
		}
		return Item{}, err
	}
	return Item{Resolved: r, StockInfo: stockInfo(r)}, nil
}

// Search is the typed-in counterpart of LookupByIdentifier.
func (s *Service) Search(ctx context.Context, text string, limit int) ([]Item, error) {
	found, err := s.catalog.Search(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(found))
	for _, r := range found {
		out = append(out, Item{Resolved: r, StockInfo: stockInfo(r)})
	}
	return out, nil
}

// ResolveDetection maps the sidecar's candidates through the catalog,
// dropping unknown barcodes and units without stock, highest confidence first.
func (s *Service) ResolveDetection(ctx context.Context, result *vision.Result) (Resolution, error) {
	res := Resolution{Candidates: []Candidate{}}
	if result == nil {
		return res, nil
	}
	res.Message = result.Message

	seen := make(map[uint]bool)
	for _, d := range result.Detections {
		if d.Barcode == "" {
			continue
		}
		item, err := s.LookupByIdentifier(ctx, d.Barcode)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return Resolution{}, err
		}
		if !item.StockInfo.HasStock {
			s.log.Debug("detected unit out of stock", zap.String("barcode", d.Barcode), zap.String("product", item.Product.Name))
			continue
		}
		if seen[item.Unit.ID] {
			continue
		}
		seen[item.Unit.ID] = true
		res.Candidates = append(res.Candidates, Candidate{Item: item, ClassName: d.ClassName, Confidence: d.Score()})
	}
	sort.SliceStable(res.Candidates, func(i, j int) bool {
		return res.Candidates[i].Confidence > res.Candidates[j].Confidence
	})

	res.AutoAccept = len(res.Candidates) == 1 && res.Candidates[0].Confidence >= s.cfg.AutoAcceptConfidence

	switch {
	case res.AutoAccept:
		res.Message = fmt.Sprintf("Product detected: %s", res.Candidates[0].Product.Name)
	case len(res.Candidates) > 1:
		res.Message = "Multiple products detected. Select the correct one."
	case len(res.Candidates) == 0 && res.Message == "":
		res.Message = "No products detected. Please try again or use manual entry."
	}

	if len(res.Candidates) == 0 || result.Fallback {
		suggestions, err := s.suggestions(ctx, result.Suggestions)
		if err != nil {
			return Resolution{}, err
		}
		res.Suggestions = suggestions
	}
	return res, nil
}

// Detect sends image to the sidecar and resolves what it saw. An absent or
// failing sidecar yields an Unavailable resolution with in-stock suggestions,
// never an error.
func (s *Service) Detect(ctx context.Context, image string) (Resolution, error) {
	if image == "" {
		return Resolution{}, apperror.Invalid("image", "is required")
	}
	if s.detector == nil {
		s.metrics.VisionRequest("disabled")
		return s.unavailable(ctx, "Camera lookup is not configured. Please use manual entry.")
	}

	result, err := s.detector.Detect(ctx, image)
	if errors.Is(err, apperror.ErrCollaboratorUnavailable) {
		s.metrics.VisionRequest("unavailable")
		return s.unavailable(ctx, "Vision service unavailable. Please use manual entry.")
	}
	if err != nil {
		return Resolution{}, err
	}

	res, err := s.ResolveDetection(ctx, result)
	if err != nil {
		return Resolution{}, err
	}
	if len(res.Candidates) == 0 {
		s.metrics.VisionRequest("empty")
	} else {
		s.metrics.VisionRequest("ok")
	}
	return res, nil
}

// VisionHealth proxies the sidecar health check.
func (s *Service) VisionHealth(ctx context.Context) (*vision.Health, error) {
	if s.detector == nil {
		return nil, fmt.Errorf("vision service not configured: %w", apperror.ErrCollaboratorUnavailable)
	}
	return s.detector.Health(ctx)
}

// VisionProducts proxies the sidecar's list of recognisable products.
func (s *Service) VisionProducts(ctx context.Context) (vision.Info, error) {
	if s.detector == nil {
		return nil, fmt.Errorf("vision service not configured: %w", apperror.ErrCollaboratorUnavailable)
	}
	return s.detector.SupportedProducts(ctx)
}

// VisionModel proxies the sidecar's model description.
func (s *Service) VisionModel(ctx context.Context) (vision.Info, error) {
	if s.detector == nil {
		return nil, fmt.Errorf("vision service not configured: %w", apperror.ErrCollaboratorUnavailable)
	}
	return s.detector.ModelInfo(ctx)
}

func (s *Service) unavailable(ctx context.Context, message string) (Resolution, error) {
	suggestions, err := s.suggestions(ctx, nil)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{
		Candidates:  []Candidate{},
		Unavailable: true,
		Message:     message,
		Suggestions: suggestions,
	}, nil
}

// suggestions resolves the sidecar's own suggestions, or falls back to
// whatever is in stock.
func (s *Service) suggestions(ctx context.Context, offered []vision.Suggestion) ([]Item, error) {
	var out []Item
	for _, sg := range offered {
		if sg.Barcode == "" || len(out) >= s.cfg.SuggestionLimit {
			continue
		}
		item, err := s.LookupByIdentifier(ctx, sg.Barcode)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if item.StockInfo.HasStock {
			out = append(out, item)
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	units, err := s.catalog.InStockUnits(ctx, s.cfg.SuggestionLimit)
	if err != nil {
		return nil, err
	}
	out = make([]Item, 0, len(units))
	for _, r := range units {
		out = append(out, Item{Resolved: r, StockInfo: stockInfo(r)})
	}
	return out, nil
}
