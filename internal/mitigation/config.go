package mitigation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the user-tunable leaderboard filters. Zero values disable the
// corresponding check, except the two percentage caps where 100 means off.
type Config struct {
	MinHoldTime           time.Duration `json:"minHoldTime" validate:"gte=0"`
	MinTokenVolume        float64       `json:"minTokenVolume" validate:"gte=0"`
	MinUniqueTraders      int           `json:"minUniqueTraders" validate:"gte=0"`
	MinDistinctTokens     int           `json:"minDistinctTokens" validate:"gte=0"`
	MaxVolumeDominancePct float64       `json:"maxVolumeDominancePct" validate:"gte=0,lte=100"`
	MaxTokenPnLPct        float64       `json:"maxTokenPnlPct" validate:"gte=0,lte=100"`

	FlaggedOnly      bool `json:"flaggedOnly"`
	RankDisqualified bool `json:"rankDisqualified"`
}

func DefaultConfig() Config {
	return Config{
		MinTokenVolume:        1000,
		MinUniqueTraders:      1,
		MaxVolumeDominancePct: 100,
		MaxTokenPnLPct:        100,
	}
}

// ConfigError lists every rejected field.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid mitigation config: " + strings.Join(e.Problems, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ce := &ConfigError{}
	for _, fe := range verrs {
		ce.Problems = append(ce.Problems, fmt.Sprintf("%s must be %s %s (got %v)",
			fe.Field(), opWord(fe.Tag()), fe.Param(), fe.Value()))
	}
	return ce
}

func opWord(tag string) string {
	switch tag {
	case "gte":
		return ">="
	case "lte":
		return "<="
	default:
		return tag
	}
}
