// Package config holds the tunable parameters of the comparison engine and
// loads them from DRAWDIFF_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

// EnvPrefix is prepended to every environment key read by FromEnv.
const EnvPrefix = "DRAWDIFF_"

// Config is the full set of engine parameters. The zero value is not usable;
// start from Default.
type Config struct {
	// Pipeline
	Workers     int
	DecodeSlots int
	UnitTimeout time.Duration

	// Change detection
	InkThreshold      int
	ToleranceRadius   int
	RegionMergeRadius int
	MinRegionArea     int

	// Alignment
	ScaleTolerance   float64
	RatioTest        float64
	InlierThreshold  float64
	MinInlierRatio   float64
	MinMatches       int
	RansacIterations int
	MaxFeatures      int
	WorkingSize      int
	Seed             uint64

	// Rasters
	MaxPixels  int
	DefaultDPI float64

	// Overlay palette, #rrggbb
	RemovedColor string
	AddedColor   string
	CommonColor  string
	PaperColor   string

	// Adapters
	LogLevel      string
	MetricsAddr   string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	ArtifactDir   string
}

// Default returns the built-in configuration.
//
// The ink threshold of 128 and tolerance radius of 2 px reproduce the
// historical overlays; both are exposed so they can be re-tuned against a
// reference corpus.
func Default() Config {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return Config{
		Workers:     workers,
		DecodeSlots: 2,
		UnitTimeout: 2 * time.Minute,

		InkThreshold:      128,
		ToleranceRadius:   2,
		RegionMergeRadius: 10,
		MinRegionArea:     1,

		ScaleTolerance:   0.05,
		RatioTest:        0.75,
		InlierThreshold:  3.0,
		MinInlierRatio:   0.15,
		MinMatches:       4,
		RansacIterations: 2000,
		MaxFeatures:      1500,
		WorkingSize:      1600,
		Seed:             1,

		MaxPixels:  200_000_000,
		DefaultDPI: 150,

		RemovedColor: "#e00000",
		AddedColor:   "#0050e0",
		CommonColor:  "#808080",
		PaperColor:   "#ffffff",

		LogLevel:    "info",
		RedisStream: "drawdiff:results",
	}
}

// FromEnv returns Default overridden by any DRAWDIFF_* variables that are set.
// Malformed numeric values fall back to the default.
func FromEnv() Config {
	c := Default()

	c.Workers = readEnvIntDefault("WORKERS", c.Workers)
	c.DecodeSlots = readEnvIntDefault("DECODE_SLOTS", c.DecodeSlots)
	c.UnitTimeout = readEnvDurationDefault("UNIT_TIMEOUT", c.UnitTimeout)

	c.InkThreshold = readEnvIntDefault("INK_THRESHOLD", c.InkThreshold)
	c.ToleranceRadius = readEnvIntDefault("TOLERANCE_RADIUS", c.ToleranceRadius)
	c.RegionMergeRadius = readEnvIntDefault("REGION_MERGE_RADIUS", c.RegionMergeRadius)
	c.MinRegionArea = readEnvIntDefault("MIN_REGION_AREA", c.MinRegionArea)

	c.ScaleTolerance = readEnvFloatDefault("SCALE_TOLERANCE", c.ScaleTolerance)
	c.RatioTest = readEnvFloatDefault("RATIO_TEST", c.RatioTest)
	c.InlierThreshold = readEnvFloatDefault("INLIER_THRESHOLD", c.InlierThreshold)
	c.MinInlierRatio = readEnvFloatDefault("MIN_INLIER_RATIO", c.MinInlierRatio)
	c.MinMatches = readEnvIntDefault("MIN_MATCHES", c.MinMatches)
	c.RansacIterations = readEnvIntDefault("RANSAC_ITERATIONS", c.RansacIterations)
	c.MaxFeatures = readEnvIntDefault("MAX_FEATURES", c.MaxFeatures)
	c.WorkingSize = readEnvIntDefault("WORKING_SIZE", c.WorkingSize)
	c.Seed = uint64(readEnvIntDefault("SEED", int(c.Seed)))

	c.MaxPixels = readEnvIntDefault("MAX_PIXELS", c.MaxPixels)
	c.DefaultDPI = readEnvFloatDefault("DEFAULT_DPI", c.DefaultDPI)

	c.RemovedColor = readEnvDefault("REMOVED_COLOR", c.RemovedColor)
	c.AddedColor = readEnvDefault("ADDED_COLOR", c.AddedColor)
	c.CommonColor = readEnvDefault("COMMON_COLOR", c.CommonColor)
	c.PaperColor = readEnvDefault("PAPER_COLOR", c.PaperColor)

	c.LogLevel = readEnvDefault("LOG_LEVEL", c.LogLevel)
	c.MetricsAddr = readEnvDefault("METRICS_ADDR", c.MetricsAddr)
	c.DBPath = readEnvDefault("DB_PATH", c.DBPath)
	c.RedisAddr = readEnvDefault("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = readEnvDefault("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = readEnvIntDefault("REDIS_DB", c.RedisDB)
	c.RedisStream = readEnvDefault("REDIS_STREAM", c.RedisStream)
	c.ArtifactDir = readEnvDefault("ARTIFACT_DIR", c.ArtifactDir)

	return c
}

// Validate reports every out-of-range parameter at once.
func (c Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.DecodeSlots <= 0 {
		errs = append(errs, fmt.Errorf("decode slots must be positive, got %d", c.DecodeSlots))
	}
	if c.UnitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("unit timeout must be positive, got %s", c.UnitTimeout))
	}
	if c.InkThreshold < 1 || c.InkThreshold > 255 {
		errs = append(errs, fmt.Errorf("ink threshold must be in 1..255, got %d", c.InkThreshold))
	}
	if c.ToleranceRadius < 0 {
		errs = append(errs, fmt.Errorf("tolerance radius must not be negative, got %d", c.ToleranceRadius))
	}
	if c.RegionMergeRadius < 0 {
		errs = append(errs, fmt.Errorf("region merge radius must not be negative, got %d", c.RegionMergeRadius))
	}
	if c.MinRegionArea < 0 {
		errs = append(errs, fmt.Errorf("min region area must not be negative, got %d", c.MinRegionArea))
	}
	if c.ScaleTolerance <= 0 || c.ScaleTolerance >= 1 {
		errs = append(errs, fmt.Errorf("scale tolerance must be in (0,1), got %v", c.ScaleTolerance))
	}
	if c.RatioTest <= 0 || c.RatioTest >= 1 {
		errs = append(errs, fmt.Errorf("ratio test must be in (0,1), got %v", c.RatioTest))
	}
	if c.InlierThreshold <= 0 {
		errs = append(errs, fmt.Errorf("inlier threshold must be positive, got %v", c.InlierThreshold))
	}
	if c.MinInlierRatio < 0 || c.MinInlierRatio > 1 {
		errs = append(errs, fmt.Errorf("min inlier ratio must be in [0,1], got %v", c.MinInlierRatio))
	}
	if c.MinMatches < 2 {
		errs = append(errs, fmt.Errorf("min matches must be at least 2, got %d", c.MinMatches))
	}
	if c.RansacIterations <= 0 {
		errs = append(errs, fmt.Errorf("ransac iterations must be positive, got %d", c.RansacIterations))
	}
	if c.MaxFeatures <= 0 {
		errs = append(errs, fmt.Errorf("max features must be positive, got %d", c.MaxFeatures))
	}
	if c.WorkingSize < 64 {
		errs = append(errs, fmt.Errorf("working size must be at least 64, got %d", c.WorkingSize))
	}
	if c.MaxPixels < 0 {
		errs = append(errs, fmt.Errorf("max pixels must not be negative, got %d", c.MaxPixels))
	}
	for name, hex := range map[string]string{
		"removed": c.RemovedColor,
		"added":   c.AddedColor,
		"common":  c.CommonColor,
		"paper":   c.PaperColor,
	} {
		if _, err := colorful.Hex(hex); err != nil {
			errs = append(errs, fmt.Errorf("%s color %q: %w", name, hex, err))
		}
	}
	return errors.Join(errs...)
}

func readEnvDefault(key, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if val == "" {
		return defaultVal
	}
	return val
}

func readEnvIntDefault(key string, defaultVal int) int {
	raw := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

func readEnvFloatDefault(key string, defaultVal float64) float64 {
	raw := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if raw == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return defaultVal
	}
	return f
}

func readEnvDurationDefault(key string, defaultVal time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
