package indicator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownIndicator is returned for unsupported indicator types or keys.
var ErrUnknownIndicator = errors.New("unknown indicator")

// Config specifies a single indicator to build.
type Config struct {
	Type   string  `yaml:"type" json:"type"` // SMA, EMA, SMMA, RSI, MACD, SLOPE, BB
	Period int     `yaml:"period,omitempty" json:"period,omitempty"`
	Fast   int     `yaml:"fast,omitempty" json:"fast,omitempty"`
	Slow   int     `yaml:"slow,omitempty" json:"slow,omitempty"`
	Signal int     `yaml:"signal,omitempty" json:"signal,omitempty"`
	K      float64 `yaml:"k,omitempty" json:"k,omitempty"`
}

// New builds an indicator from cfg.
func New(cfg Config) (Indicator, error) {
	typ := strings.ToUpper(cfg.Type)
	switch typ {
	case "MACD":
		if cfg.Fast <= 0 || cfg.Slow <= 0 || cfg.Signal <= 0 || cfg.Fast >= cfg.Slow {
			return nil, fmt.Errorf("indicator MACD(%d,%d,%d): invalid periods", cfg.Fast, cfg.Slow, cfg.Signal)
		}
		return NewMACD(cfg.Fast, cfg.Slow, cfg.Signal), nil
	case "BB":
		if cfg.Period < 2 || cfg.K <= 0 {
			return nil, fmt.Errorf("indicator BB(%d,%g): invalid params", cfg.Period, cfg.K)
		}
		return NewBollinger(cfg.Period, cfg.K), nil
	}

	if cfg.Period <= 0 {
		return nil, fmt.Errorf("indicator %s: period must be positive, got %d", typ, cfg.Period)
	}
	switch typ {
	case "SMA":
		return NewSMA(cfg.Period), nil
	case "EMA":
		return NewEMA(cfg.Period), nil
	case "SMMA":
		return NewSMMA(cfg.Period), nil
	case "RSI":
		return NewRSI(cfg.Period), nil
	case "SLOPE":
		if cfg.Period < 2 {
			return nil, fmt.Errorf("indicator SLOPE: period must be at least 2, got %d", cfg.Period)
		}
		return NewSlope(cfg.Period), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndicator, cfg.Type)
	}
}

// Parse builds an indicator from its key, e.g. "SMA_20", "MACD_12_26_9",
// "BB_20_2". Parse(ind.Name()) yields an equivalent fresh indicator.
func Parse(key string) (Indicator, error) {
	parts := strings.Split(strings.TrimSpace(key), "_")
	cfg := Config{Type: parts[0]}
	args := parts[1:]

	nums := make([]int, 0, len(args))
	for i, a := range args {
		if strings.EqualFold(cfg.Type, "BB") && i == 1 {
			k, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: bad multiplier", ErrUnknownIndicator, key)
			}
			cfg.K = k
			continue
		}
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: bad period %q", ErrUnknownIndicator, key, a)
		}
		nums = append(nums, n)
	}

	switch strings.ToUpper(cfg.Type) {
	case "MACD":
		if len(nums) != 3 {
			return nil, fmt.Errorf("%w: %q: want MACD_<fast>_<slow>_<signal>", ErrUnknownIndicator, key)
		}
		cfg.Fast, cfg.Slow, cfg.Signal = nums[0], nums[1], nums[2]
	case "BB":
		if len(nums) != 1 {
			return nil, fmt.Errorf("%w: %q: want BB_<period>_<k>", ErrUnknownIndicator, key)
		}
		cfg.Period = nums[0]
		if cfg.K == 0 {
			cfg.K = 2
		}
	default:
		if len(nums) != 1 {
			return nil, fmt.Errorf("%w: %q: want <TYPE>_<period>", ErrUnknownIndicator, key)
		}
		cfg.Period = nums[0]
	}
	return New(cfg)
}
