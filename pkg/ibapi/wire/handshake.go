package wire

import (
	"fmt"
	"strconv"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
)

// APIPrefix is written raw, unframed, before anything else.
const APIPrefix = "API\x00"

// Hello builds the client greeting: the raw prefix followed by a framed
// version range token "v<min>..<max>" with optional space separated options.
func Hello(minVersion, maxVersion int, options string) ([]byte, error) {
	if minVersion <= 0 || maxVersion < minVersion {
		return nil, fmt.Errorf("%w: version range [%d,%d]", iberr.ErrHandshakeFailed, minVersion, maxVersion)
	}
	token := fmt.Sprintf("v%d..%d", minVersion, maxVersion)
	if options != "" {
		token += " " + options
	}
	out := []byte(APIPrefix)
	return append(out, Frame([]byte(token))...), nil
}

// ServerHello is the first framed reply of the gateway.
type ServerHello struct {
	Version        int
	ConnectionTime string
}

// ParseServerHello decodes the payload "version\0connectionTime\0".
func ParseServerHello(payload []byte) (ServerHello, error) {
	fields := Fields(payload)
	if len(fields) < 1 || fields[0] == "" {
		return ServerHello{}, fmt.Errorf("%w: empty server hello", iberr.ErrHandshakeFailed)
	}
	v, err := strconv.Atoi(fields[0])
	if err != nil {
		return ServerHello{}, fmt.Errorf("%w: server version %q: %v", iberr.ErrHandshakeFailed, fields[0], err)
	}
	hello := ServerHello{Version: v}
	if len(fields) > 1 {
		hello.ConnectionTime = fields[1]
	}
	return hello, nil
}
