package bthost

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the decoded form of the JSON device-configuration document
// (§6). Struct tags drive both mapstructure decoding and validator
// validation.
type Config struct {
	Name                 string `mapstructure:"name"`
	Address              string `mapstructure:"address" validate:"omitempty,bd_addr"`
	ClassOfDevice        uint32 `mapstructure:"class_of_device" validate:"lte=16777215"`
	AdvertisingIntervalMS uint16 `mapstructure:"advertising_interval" validate:"omitempty,gt=0"`
	Keystore             string `mapstructure:"keystore"`
	LEEnabled            bool   `mapstructure:"le_enabled"`
	LESimultaneousEnabled bool   `mapstructure:"le_simultaneous_enabled"`
	ClassicSCEnabled     bool   `mapstructure:"classic_sc_enabled"`
	ClassicSSPEnabled    bool   `mapstructure:"classic_ssp_enabled"`
	Connectable          bool   `mapstructure:"connectable"`
	Discoverable         bool   `mapstructure:"discoverable"`
	IRKHex               string `mapstructure:"irk" validate:"omitempty,len=32,hexadecimal"`
	AdvertisingDataHex   string `mapstructure:"advertising_data" validate:"omitempty,hexadecimal"`
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("bd_addr", func(fl validator.FieldLevel) bool {
		_, err := ParseAddress(fl.Field().String(), AddressTypePublic)
		return err == nil
	})
	return v
}

// LoadConfig decodes and validates a JSON device-configuration document
// (§6).
func LoadConfig(data []byte) (Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return Config{}, fmt.Errorf("bthost: reading config: %w", err)
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return Config{}, fmt.Errorf("bthost: decoding config: %w", err)
	}
	if err := configValidator.Struct(cfg); err != nil {
		return Config{}, &InvalidArgument{Msg: err.Error()}
	}
	return cfg, nil
}

// IRK resolves the configuration's identity resolving key: the explicit
// `irk` field if present, or a deterministic-but-insecure derivation from
// the address when absent (§6: "documented as insecure").
func (c Config) IRK(addr Address) ([16]byte, error) {
	if c.IRKHex != "" {
		raw, err := hex.DecodeString(c.IRKHex)
		if err != nil || len(raw) != 16 {
			return [16]byte{}, &InvalidArgument{Msg: "irk must be 32 hex characters"}
		}
		var irk [16]byte
		copy(irk[:], raw)
		return irk, nil
	}
	b := addr.Bytes()
	sum := sha256.Sum256(b[:])
	var irk [16]byte
	copy(irk[:], sum[:16])
	return irk, nil
}

// AdvertisingData decodes the configuration's raw advertising-data bytes.
func (c Config) AdvertisingData() ([]byte, error) {
	if c.AdvertisingDataHex == "" {
		return nil, nil
	}
	return hex.DecodeString(c.AdvertisingDataHex)
}
