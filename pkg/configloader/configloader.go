// pkg/configloader/configloader.go
package configloader

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Defaults — плоская карта "section.key" → значение по умолчанию.
type Defaults map[string]interface{}

// Load загружает конфиг в cfgPtr: defaults → YAML-файл → ENV.
// envPrefix — префикс переменных окружения, например "IBCOLLECTOR":
// ключ gateway.addr читается из IBCOLLECTOR_GATEWAY_ADDR.
func Load(path, envPrefix string, defaults Defaults, cfgPtr interface{}) error {
	v := viper.New()

	// Шаг 1: defaults. Они же делают ключи видимыми для AutomaticEnv.
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	// Шаг 2: ENV
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Шаг 3: файл (если задан)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("configloader: read config %q: %w", path, err)
		}
	}

	// Шаг 4: decode
	if err := decode(v.AllSettings(), cfgPtr); err != nil {
		return fmt.Errorf("configloader: decode failed: %w", err)
	}

	// Шаг 5: validate, если умеет
	if vc, ok := cfgPtr.(interface{ Validate() error }); ok {
		if err := vc.Validate(); err != nil {
			return fmt.Errorf("configloader: validation failed: %w", err)
		}
	}
	return nil
}

func decode(input map[string]interface{}, target interface{}) error {
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToBoolHook,
	)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           target,
		DecodeHook:       hook,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// stringToBoolHook разбирает "true"/"false" из ENV.
func stringToBoolHook(f, t reflect.Kind, data interface{}) (interface{}, error) {
	if f == reflect.String && t == reflect.Bool {
		return strconv.ParseBool(data.(string))
	}
	return data, nil
}

// Sprint возвращает конфиг в виде JSON с отступами.
func Sprint(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
