//go:build !linux && !darwin && !windows

package pinger

import "os"

// otherCapability 其他平台只区分root与非root
type otherCapability struct{}

func (o *otherCapability) hasPrivilegedAccess() bool {
	return os.Geteuid() == 0
}

func (o *otherCapability) newPrivilegedEchoer(config *Config) (echoer, error) {
	return newPrivilegedEchoer(config), nil
}

func (o *otherCapability) newUnprivilegedEchoer(config *Config) (echoer, error) {
	return newCommandEchoer(config), nil
}

func getPlatformCapability() platformCapability {
	return &otherCapability{}
}
