// Package sizing turns a signal's confidence and ask price into an order
// amount in collateral units.
package sizing

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"
)

// Mode selects the sizing policy.
type Mode string

const (
	ModeFixed      Mode = "fixed"
	ModeConfidence Mode = "confidence"
	ModeKelly      Mode = "kelly"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeFixed, ModeConfidence, ModeKelly:
		return m, nil
	case "":
		return ModeFixed, nil
	}
	return "", fmt.Errorf("sizing: unknown mode %q", s)
}

// Config is the sizing policy.
type Config struct {
	Mode          Mode
	BaseSize      float64
	MinOrder      float64
	MaxOrder      float64
	KellyFraction float64 // 0.25 is quarter-Kelly
	KellyWinProb  float64 // estimated probability that a confirmed signal wins
	KellyScale    float64 // normalizes the Kelly stake against BaseSize
	ScoreWeight   float64
	EdgeWeight    float64
}

// Input carries the per-signal values a policy may use.
type Input struct {
	Confidence  float64 // 0-100; zero means no hint and is treated as 100
	AskPrice    float64
	MaxBuyPrice float64
}

// Sizer is stateless apart from its policy and safe for concurrent use.
type Sizer struct {
	cfg    Config
	logger *slog.Logger
}

// New returns a Sizer for cfg.
func New(cfg Config, logger *slog.Logger) *Sizer {
	if cfg.Mode == "" {
		cfg.Mode = ModeFixed
	}
	return &Sizer{cfg: cfg, logger: logger.With(slog.String("component", "sizer"))}
}

// Mode returns the configured sizing mode.
func (s *Sizer) Mode() Mode { return s.cfg.Mode }

// Size returns the order amount, always clamped to [MinOrder, MaxOrder]
// and rounded to cents.
func (s *Sizer) Size(in Input) float64 {
	var raw float64
	switch s.cfg.Mode {
	case ModeConfidence:
		raw = s.confidence(in)
	case ModeKelly:
		raw = s.kelly(in.AskPrice)
	default:
		raw = s.cfg.BaseSize
	}

	clamped := math.Max(s.cfg.MinOrder, math.Min(raw, s.cfg.MaxOrder))
	if clamped != raw {
		s.logger.Debug("size clamped",
			slog.String("mode", string(s.cfg.Mode)),
			slog.Float64("raw", raw),
			slog.Float64("clamped", clamped),
		)
	}
	return decimal.NewFromFloat(clamped).Round(2).InexactFloat64()
}

// confidence scales BaseSize by a multiplier in [0.5, 1.5] blending the
// confidence score with how far the ask sits below the max buy price.
func (s *Sizer) confidence(in Input) float64 {
	score := in.Confidence
	if score <= 0 {
		score = 100
	}
	scoreFactor := math.Min(score/100, 1)

	var edgeFactor float64
	if in.MaxBuyPrice > 0 {
		edgeFactor = (in.MaxBuyPrice - in.AskPrice) / in.MaxBuyPrice
	}
	edgeFactor = math.Max(0, math.Min(edgeFactor, 1))

	combined := 0.5
	if total := s.cfg.ScoreWeight + s.cfg.EdgeWeight; total > 0 {
		combined = (s.cfg.ScoreWeight*scoreFactor + s.cfg.EdgeWeight*edgeFactor) / total
	}
	return s.cfg.BaseSize * (0.5 + combined)
}

// kelly is the fractional Kelly stake f = (p*b - q) / b with net odds
// b = 1/ask - 1.
func (s *Sizer) kelly(ask float64) float64 {
	if ask <= 0 || ask >= 1 {
		return s.cfg.BaseSize
	}
	p := s.cfg.KellyWinProb
	q := 1 - p
	b := 1/ask - 1
	if b <= 0 {
		return s.cfg.MinOrder
	}
	f := (p*b - q) / b
	if f <= 0 {
		return s.cfg.MinOrder
	}
	return s.cfg.BaseSize * f * s.cfg.KellyFraction * s.cfg.KellyScale
}
