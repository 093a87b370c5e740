package handler

import (
	"fmt"
	"os"
	"strconv"

	"github.com/uber/exthost-broker/src/exthost/internal/serverinfofile"
	"go.uber.org/config"
)

const (
	_configKeyServiceName = "service.name"

	_infoFileKeyService = "exthost-service"
	_infoFileKeyPID     = "exthost-pid"
)

// Output the identity of this process so that extension host launchers can tell which broker the address in the
// server info file belongs to. The JSON-RPC module adds the address itself.
func outputServiceInfo(cfg config.Provider, infofile serverinfofile.ServerInfoFile) error {
	var name string
	if err := cfg.Get(_configKeyServiceName).Populate(&name); err != nil {
		return fmt.Errorf("getting config field %q: %w", _configKeyServiceName, err)
	}
	if name == "" {
		return fmt.Errorf("missing field %q in config", _configKeyServiceName)
	}

	err := infofile.Publish(map[string]string{
		_infoFileKeyService: name,
		_infoFileKeyPID:     strconv.Itoa(os.Getpid()),
	})
	if err != nil {
		return fmt.Errorf("outputting service info: %w", err)
	}
	return nil
}
