// Package version provides default versions, user-agents and peer ID prefixes for identifying
// the client to trackers.
package version

import (
	"crypto/rand"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
)

const (
	ClientName         = "TC"
	ClientVersionMajor = 0
	ClientVersionMinor = 1
)

var (
	// The BEP 20 prefix for peer IDs. This should be updated when announce behaviour changes in a
	// way trackers could care about.
	DefaultBep20Prefix   = GenerateFingerprint(ClientName, ClientVersionMajor, ClientVersionMinor, 0, 0)
	DefaultHttpUserAgent string

	// libtorrent/src/http_tracker_connection.cpp
	AnonymousHttpUserAgent = "curl/7.81.0"
	// libtorrent 2.0.11 = 2025-01-28
	AnonymousBep20Prefix = GenerateFingerprint("LT", 2, 0, 11, 0)
)

func init() {
	const (
		longNamespace   = "anacrolix"
		longPackageName = "trackerclient"
	)
	type Newtype struct{}
	var newtype Newtype
	thisPkg := reflect.TypeOf(newtype).PkgPath()
	moduleVersion := "unknown"
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		thisModule := ""
		// Note that if the main module is the same as this module, we get a version of "(devel)".
		for _, dep := range append(buildInfo.Deps, &buildInfo.Main) {
			if strings.HasPrefix(thisPkg, dep.Path) && len(dep.Path) >= len(thisModule) {
				thisModule = dep.Path
				moduleVersion = dep.Version
			}
		}
	}
	// Per https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/User-Agent#library_and_net_tool_ua_strings
	DefaultHttpUserAgent = fmt.Sprintf(
		"%v-%v/%v",
		longNamespace,
		longPackageName,
		moduleVersion,
	)
}

// Returns a peer ID starting with prefix, with the rest random. A prefix longer than 20 bytes is
// truncated.
func RandomPeerId(prefix string) (ret [20]byte) {
	n := copy(ret[:], prefix)
	_, err := rand.Read(ret[n:])
	if err != nil {
		panic(err)
	}
	return
}
