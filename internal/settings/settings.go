// Package settings loads and validates the process configuration,
// following the teacher repository's Init()/consts-table pattern: every
// environment variable lives in internal/consts, defaults are registered
// with viper.SetDefault, and the resolved configuration is logged once at
// startup.
package settings

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/TritonDataCenter/napi-go/internal/consts"
	"github.com/TritonDataCenter/napi-go/internal/logging"
)

// InfiniteRetries is the bounded stand-in for the "Infinity" retry
// setting described in spec.md §9: config may say "Infinity" or null, but
// the implementation always retries a concrete, large number of times.
const InfiniteRetries = 1 << 20

// Settings is the fully-resolved, validated process configuration.
type Settings struct {
	JSONLogging bool   `validate:"-"`
	LogLevel    string `validate:"required,oneof=debug info warn error"`

	HTTPListenAddr    string        `validate:"required"`
	HTTPReadTimeout   time.Duration `validate:"min=0"`
	HTTPWriteTimeout  time.Duration `validate:"min=0"`
	HTTPShutdownGrace time.Duration `validate:"min=0"`

	AdminOwnerUUID string `validate:"required,uuid"`
	UnderlayNICTag string `validate:"omitempty,max=31"`
	FabricsEnabled bool   `validate:"-"`
	ULAFabrics     bool   `validate:"-"`

	EtagRetryBound  int `validate:"min=1"`
	AllocRetryBound int `validate:"min=1"`

	MongoURI string `validate:"omitempty"`
	MongoDB  string `validate:"omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads environment variables (via viper.AutomaticEnv), applies
// defaults, validates the result, and logs the resolved configuration.
func Load() (Settings, error) {
	viper.SetDefault(consts.JSON_LOGGING, true)
	viper.SetDefault(consts.LOG_LEVEL, "info")
	viper.SetDefault(consts.HTTP_LISTEN_ADDR, ":8080")
	viper.SetDefault(consts.HTTP_READ_TIMEOUT, 30)
	viper.SetDefault(consts.HTTP_WRITE_TIMEOUT, 30)
	viper.SetDefault(consts.HTTP_SHUTDOWN_GRACE, 10)
	viper.SetDefault(consts.FABRICS_ENABLED, true)
	viper.SetDefault(consts.ULA_FABRICS, true)
	viper.SetDefault(consts.ETAG_RETRY_BOUND, "3")
	viper.SetDefault(consts.ALLOC_RETRY_BOUND, "10")

	viper.AutomaticEnv()

	etagBound, err := parseRetryBound(viper.GetString(consts.ETAG_RETRY_BOUND))
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", consts.ETAG_RETRY_BOUND, err)
	}
	allocBound, err := parseRetryBound(viper.GetString(consts.ALLOC_RETRY_BOUND))
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", consts.ALLOC_RETRY_BOUND, err)
	}

	s := Settings{
		JSONLogging:       viper.GetBool(consts.JSON_LOGGING),
		LogLevel:          strings.ToLower(viper.GetString(consts.LOG_LEVEL)),
		HTTPListenAddr:    viper.GetString(consts.HTTP_LISTEN_ADDR),
		HTTPReadTimeout:   time.Duration(viper.GetInt(consts.HTTP_READ_TIMEOUT)) * time.Second,
		HTTPWriteTimeout:  time.Duration(viper.GetInt(consts.HTTP_WRITE_TIMEOUT)) * time.Second,
		HTTPShutdownGrace: time.Duration(viper.GetInt(consts.HTTP_SHUTDOWN_GRACE)) * time.Second,
		AdminOwnerUUID:    viper.GetString(consts.ADMIN_OWNER_UUID),
		UnderlayNICTag:    viper.GetString(consts.UNDERLAY_NIC_TAG),
		FabricsEnabled:    viper.GetBool(consts.FABRICS_ENABLED),
		ULAFabrics:        viper.GetBool(consts.ULA_FABRICS),
		EtagRetryBound:    etagBound,
		AllocRetryBound:   allocBound,
		MongoURI:          viper.GetString(consts.MONGO_URI),
		MongoDB:           viper.GetString(consts.MONGO_DB),
	}

	if err := validate.Struct(s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}

	printResolvedSettings(s)
	return s, nil
}

// parseRetryBound accepts a decimal integer, the literal string
// "Infinity" (case-insensitive), or an empty string (JSON null decodes to
// ""), per spec.md §9.
func parseRetryBound(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "infinity") || strings.EqualFold(trimmed, "null") {
		return InfiniteRetries, nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("retry bound %q is neither an integer nor \"Infinity\": %w", raw, err)
	}
	if n <= 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("retry bound %d out of range", n)
	}
	return n, nil
}

func printResolvedSettings(s Settings) {
	logging.Info("resolved configuration",
		"jsonLogging", s.JSONLogging,
		"logLevel", s.LogLevel,
		"httpListenAddr", s.HTTPListenAddr,
		"adminOwnerUUID", s.AdminOwnerUUID,
		"underlayNICTag", s.UnderlayNICTag,
		"fabricsEnabled", s.FabricsEnabled,
		"ulaFabrics", s.ULAFabrics,
		"etagRetryBound", s.EtagRetryBound,
		"allocRetryBound", s.AllocRetryBound,
		"mongoConfigured", s.MongoURI != "",
	)
}
